// Package catalog is the HTTP client for the remote event catalog API.
//
// Resources live under <api url>/<kind>s:
//
//	POST   /events        create, response body carries the new id
//	PUT    /events/{id}   update
//	DELETE /events/{id}   delete
//
// Requests and responses are JSON. Every request uses HTTP basic auth.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/eventpush/internal/ir"
)

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the catalog.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("catalog %s %s: status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the catalog.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the catalog API. It implements engine.Catalog.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the API at baseURL.
func New(baseURL, username, password string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: must be an absolute http(s) URL", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateResource posts payload and returns the id the catalog assigned.
func (c *Client) CreateResource(ctx context.Context, kind string, payload ir.Object) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.collectionURL(kind), payload)
	if err != nil {
		return "", err
	}

	id, err := remoteID(body)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	return id, nil
}

// UpdateResource replaces the resource remoteID with payload.
func (c *Client) UpdateResource(ctx context.Context, kind, remoteID string, payload ir.Object) error {
	_, err := c.do(ctx, http.MethodPut, c.resourceURL(kind, remoteID), payload)
	return err
}

// DeleteResource removes remoteID. A resource that is already gone counts as
// deleted.
func (c *Client) DeleteResource(ctx context.Context, kind, remoteID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.resourceURL(kind, remoteID), nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) collectionURL(kind string) string {
	return c.baseURL + "/" + url.PathEscape(kind) + "s"
}

func (c *Client) resourceURL(kind, remoteID string) string {
	return c.collectionURL(kind) + "/" + url.PathEscape(remoteID)
}

func (c *Client) do(ctx context.Context, method, target string, payload ir.Object) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

// remoteID extracts the id from a create response. It accepts "id" as a
// string or number, falling back to the last segment of a JSON-LD "@id".
func remoteID(body []byte) (string, error) {
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if raw, ok := resp["id"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
				return n.String(), nil
			}
		}
	}

	if raw, ok := resp["@id"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return path.Base(s), nil
		}
	}

	return "", errors.New("response has no id")
}
