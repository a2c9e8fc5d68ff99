package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eventpush/internal/store"
)

const sampleConfig = `
api:
  url: https://api.example.com/api
  username: api-write
  password: apipass
  timeout: 5s
site:
  base_url: https://kultur.example.com
mapping:
  file: mapping.yml
store:
  path: state/mirror.db
`

const sampleMapping = `
event:
  type: event
  mapping:
    name: title
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "eventpush.yaml", sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.API.URL)
	assert.Equal(t, "api-write", cfg.API.Username)
	assert.Equal(t, "apipass", cfg.API.Password)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "https://kultur.example.com", cfg.Site.BaseURL)
	assert.Equal(t, "/node/{id}", cfg.Site.CanonicalPath, "default")
	assert.Equal(t, store.DriverCGO, cfg.Store.Driver, "default")
	assert.Empty(t, cfg.Metrics.Addr, "metrics off by default")
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, filepath.Join(dir, "state/mirror.db"), cfg.StorePath())

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "eventpush.yaml", sampleConfig)

	t.Setenv("EVENTPUSH_API_PASSWORD", "from-env")
	t.Setenv("EVENTPUSH_STORE_DRIVER", "sqlite")
	t.Setenv("EVENTPUSH_SITE_CANONICAL_PATH", "/{type}/{id}")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.Password)
	assert.Equal(t, store.DriverPure, cfg.Store.Driver)
	assert.Equal(t, "/{type}/{id}", cfg.Site.CanonicalPath)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_NoDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Dir)
	assert.Equal(t, "eventpush.db", cfg.StorePath())
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "eventpush.yaml", "api: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		API:   APIConfig{URL: "ftp://nope", Timeout: -time.Second},
		Site:  SiteConfig{BaseURL: "", CanonicalPath: "node/{id}", FilesBaseURL: "files"},
		Store: StoreConfig{Driver: "postgres"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	problems := Problems(err)
	assert.Len(t, problems, 8)
	assert.ErrorContains(t, err, `api.url "ftp://nope" must be an absolute http(s) URL`)
	assert.ErrorContains(t, err, "api.timeout must not be negative")
	assert.ErrorContains(t, err, "site.base_url is required")
	assert.ErrorContains(t, err, `site.files_base_url "files"`)
	assert.ErrorContains(t, err, `site.canonical_path "node/{id}" must start with /`)
	assert.ErrorContains(t, err, "one of mapping.file or mapping.content_types is required")
	assert.ErrorContains(t, err, `store.driver "postgres"`)
	assert.ErrorContains(t, err, "store.path is required")
}

func TestMappings_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mapping.yml", sampleMapping)
	path := writeFile(t, dir, "eventpush.yaml", sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	set, err := cfg.Mappings()
	require.NoError(t, err)
	assert.Equal(t, []string{"event"}, set.Types())
}

func TestMappings_Inline(t *testing.T) {
	cfg := &Config{Mapping: MappingConfig{ContentTypes: sampleMapping}}

	source, _, err := cfg.MappingSource()
	require.NoError(t, err)
	assert.Equal(t, "mapping.content_types", source)

	set, err := cfg.Mappings()
	require.NoError(t, err)
	_, ok := set.Lookup("event")
	assert.True(t, ok)
}

func TestMappings_MissingFile(t *testing.T) {
	cfg := &Config{Mapping: MappingConfig{File: "/does/not/exist.yml"}}
	_, err := cfg.Mappings()
	assert.ErrorContains(t, err, "read mapping")
}
