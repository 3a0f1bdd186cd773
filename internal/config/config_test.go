package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, "127.0.0.1:8013", cfg.Listen)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, def.DataDir, cfg.DataDir)
	assert.Equal(t, def.CacheDir, cfg.CacheDir)
	assert.Equal(t, def.Search, cfg.Search)
	assert.Equal(t, 30*time.Second, cfg.Catalog.FetchTimeout)
	assert.Empty(t, cfg.Catalog.Sources)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"listen": "localhost:0",
		"read_timeout": "2s",
		"log": {"level": "debug"},
		"data_dir": "`+filepath.ToSlash(dir)+`/data",
		"search": {"default_limit": 20, "workers": 3},
		"catalog": {"sources": ["https://example.com/c.json", "/tmp/c.plist"]}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:0", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.ToSlash(dir)+"/data", cfg.DataDir)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 10000, cfg.Search.MaxLimit)
	assert.Equal(t, 3, cfg.Search.Workers)
	assert.Equal(t, []string{"https://example.com/c.json", "/tmp/c.plist"}, cfg.Catalog.Sources)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("LEXIS_LISTEN", "127.0.0.1:9000")
	t.Setenv("LEXIS_SEARCH_MAX_LIMIT", "500")
	t.Setenv("LEXIS_CATALOG_FETCH_TIMEOUT", "5s")
	t.Setenv("LEXIS_CATALOG_SOURCES", "a.json,b.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 500, cfg.Search.MaxLimit)
	assert.Equal(t, 5*time.Second, cfg.Catalog.FetchTimeout)
	assert.Equal(t, []string{"a.json", "b.json"}, cfg.Catalog.Sources)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"public listen":     func(c *Config) { c.Listen = "0.0.0.0:8013" },
		"all interfaces":    func(c *Config) { c.Listen = ":8013" },
		"no port":           func(c *Config) { c.Listen = "127.0.0.1" },
		"bad level":         func(c *Config) { c.Log.Level = "loud" },
		"zero limit":        func(c *Config) { c.Search.DefaultLimit = 0 },
		"max below default": func(c *Config) { c.Search.MaxLimit = 10 },
		"no workers":        func(c *Config) { c.Search.Workers = 0 },
		"no data dir":       func(c *Config) { c.DataDir = "" },
		"zero timeout":      func(c *Config) { c.Catalog.FetchTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, Validate(cfg))
		})
	}
	require.NoError(t, Validate(Default()))
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, IsLoopbackAddr("127.0.0.1:0"))
	assert.True(t, IsLoopbackAddr("[::1]:8013"))
	assert.True(t, IsLoopbackAddr("localhost:80"))
	assert.False(t, IsLoopbackAddr("192.168.1.2:80"))
	assert.False(t, IsLoopbackAddr("example.com:80"))
	assert.False(t, IsLoopbackAddr("127.0.0.1:70000"))
}
