// Package site builds absolute URLs on the host site: canonical object URLs
// and public URLs for stored files.
package site

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultCanonicalPath is used when no canonical path template is configured.
const DefaultCanonicalPath = "/node/{id}"

// defaultFilesPath is appended to the base URL when no files base URL is set.
const defaultFilesPath = "/sites/default/files"

// Site holds the host site's public URLs.
type Site struct {
	baseURL       string
	canonicalPath string
	filesBaseURL  string
}

// New validates the URLs and returns a Site. canonicalPath may contain the
// placeholders {type} and {id}.
func New(baseURL, canonicalPath, filesBaseURL string) (*Site, error) {
	base, err := parseAbsolute("base url", baseURL)
	if err != nil {
		return nil, err
	}

	files := base + defaultFilesPath
	if filesBaseURL != "" {
		if files, err = parseAbsolute("files base url", filesBaseURL); err != nil {
			return nil, err
		}
	}

	if canonicalPath == "" {
		canonicalPath = DefaultCanonicalPath
	}
	if !strings.HasPrefix(canonicalPath, "/") {
		canonicalPath = "/" + canonicalPath
	}

	return &Site{baseURL: base, canonicalPath: canonicalPath, filesBaseURL: files}, nil
}

func parseAbsolute(what, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", what, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", what, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (s *Site) BaseURL() string { return s.baseURL }

// CanonicalURL returns the absolute URL of a content object.
func (s *Site) CanonicalURL(objectType, id string) string {
	path := strings.NewReplacer(
		"{type}", url.PathEscape(objectType),
		"{id}", url.PathEscape(id),
	).Replace(s.canonicalPath)
	return s.baseURL + path
}

// FileURL converts a stored file URI to an absolute URL.
//
//	public://2024/jazz.jpg  -> <files base>/2024/jazz.jpg
//	https://cdn/x.jpg       -> unchanged
//	/sites/x.jpg, x.jpg     -> <base>/sites/x.jpg, <base>/x.jpg
//
// An empty URI yields "".
func (s *Site) FileURL(uri string) string {
	if uri == "" {
		return ""
	}

	if scheme, rest, ok := strings.Cut(uri, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https":
			return uri
		}
		return s.filesBaseURL + "/" + escapePath(rest)
	}

	if strings.HasPrefix(uri, "//") {
		return uri
	}
	return s.baseURL + "/" + escapePath(strings.TrimLeft(uri, "/"))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
