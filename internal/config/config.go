// Package config loads eventpush settings.
//
// Settings come from a YAML file, overridden by EVENTPUSH_* environment
// variables (EVENTPUSH_API_PASSWORD sets api.password). The result is a plain
// Config value passed to whoever needs it; nothing is global.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/roach88/eventpush/internal/catalog"
	"github.com/roach88/eventpush/internal/mapping"
	"github.com/roach88/eventpush/internal/site"
	"github.com/roach88/eventpush/internal/store"
)

const (
	configFileName = "eventpush"
	configFileType = "yaml"
	envPrefix      = "EVENTPUSH"

	defaultStorePath = "eventpush.db"
)

// Config is the full set of settings.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Site    SiteConfig    `mapstructure:"site"`
	Mapping MappingConfig `mapstructure:"mapping"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Dir is the directory of the loaded file; relative paths resolve
	// against it. Empty when no file was read.
	Dir string `mapstructure:"-"`
}

// APIConfig locates the remote catalog.
type APIConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SiteConfig describes the local site, used for canonical and file URLs.
type SiteConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	CanonicalPath string `mapstructure:"canonical_path"`
	FilesBaseURL  string `mapstructure:"files_base_url"`
}

// MappingConfig points at the mapping document. File wins over ContentTypes.
type MappingConfig struct {
	File         string `mapstructure:"file"`
	ContentTypes string `mapstructure:"content_types"`
}

// StoreConfig selects the mirror database.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// MetricsConfig sets where watch serves /metrics. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads settings from path. With an empty path, ./eventpush.yaml is
// read if present; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var dir string
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dir = filepath.Dir(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			dir = filepath.Dir(v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Dir = dir
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "")
	v.SetDefault("api.username", "")
	v.SetDefault("api.password", "")
	v.SetDefault("api.timeout", catalog.DefaultTimeout)
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.canonical_path", site.DefaultCanonicalPath)
	v.SetDefault("site.files_base_url", "")
	v.SetDefault("mapping.file", "")
	v.SetDefault("mapping.content_types", "")
	v.SetDefault("store.driver", store.DriverCGO)
	v.SetDefault("store.path", defaultStorePath)
	v.SetDefault("metrics.addr", "")
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error

	if c.API.URL == "" {
		err = multierr.Append(err, errors.New("api.url is required"))
	} else if !isAbsoluteHTTP(c.API.URL) {
		err = multierr.Append(err, fmt.Errorf("api.url %q must be an absolute http(s) URL", c.API.URL))
	}
	if c.API.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("api.timeout must not be negative, got %s", c.API.Timeout))
	}

	if c.Site.BaseURL == "" {
		err = multierr.Append(err, errors.New("site.base_url is required"))
	} else if !isAbsoluteHTTP(c.Site.BaseURL) {
		err = multierr.Append(err, fmt.Errorf("site.base_url %q must be an absolute http(s) URL", c.Site.BaseURL))
	}
	if c.Site.FilesBaseURL != "" && !isAbsoluteHTTP(c.Site.FilesBaseURL) {
		err = multierr.Append(err, fmt.Errorf("site.files_base_url %q must be an absolute http(s) URL", c.Site.FilesBaseURL))
	}
	if p := c.Site.CanonicalPath; p != "" && !strings.HasPrefix(p, "/") {
		err = multierr.Append(err, fmt.Errorf("site.canonical_path %q must start with /", p))
	}

	if c.Mapping.File == "" && strings.TrimSpace(c.Mapping.ContentTypes) == "" {
		err = multierr.Append(err, errors.New("one of mapping.file or mapping.content_types is required"))
	}

	switch c.Store.Driver {
	case store.DriverCGO, store.DriverPure:
	default:
		err = multierr.Append(err, fmt.Errorf("store.driver %q must be %q or %q", c.Store.Driver, store.DriverCGO, store.DriverPure))
	}
	if c.Store.Path == "" {
		err = multierr.Append(err, errors.New("store.path is required"))
	}

	return err
}

// Problems splits a Validate error into its parts.
func Problems(err error) []error {
	return multierr.Errors(err)
}

// MappingSource returns the mapping document bytes and a name for error
// messages.
func (c *Config) MappingSource() (string, []byte, error) {
	if c.Mapping.File != "" {
		path := c.Resolve(c.Mapping.File)
		data, err := os.ReadFile(path)
		if err != nil {
			return path, nil, fmt.Errorf("read mapping: %w", err)
		}
		return path, data, nil
	}
	return "mapping.content_types", []byte(c.Mapping.ContentTypes), nil
}

// Mappings parses the mapping document.
func (c *Config) Mappings() (*mapping.Set, error) {
	source, data, err := c.MappingSource()
	if err != nil {
		return nil, err
	}
	return mapping.Parse(source, data)
}

// StorePath returns the mirror database path.
func (c *Config) StorePath() string {
	return c.Resolve(c.Store.Path)
}

// Resolve makes a relative path relative to the config file's directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
