package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagerenn/lexis/internal/config"
	"github.com/sagerenn/lexis/internal/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestServe(t *testing.T) {
	cfg := testConfig(t)
	catPath := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(catPath, []byte(`{"type":"slobdict","version":1,"dictionaries":[{"id":"en","lang":"en"}]}`), 0o644))
	cfg.Catalog.Sources = []string{catPath, filepath.Join(t.TempDir(), "missing.json")}

	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	src := testutil.MakeDict(t, t.TempDir(), "words.lexd", "dict-w", "Words", testutil.Terms("apple", "apricot"))
	_, err = a.Registry.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	a.Registry.Reload()

	ctx, cancel := context.WithCancel(context.Background())
	addrc := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- a.Serve(ctx, func(addr string) { addrc <- addr })
	}()

	var addr string
	select {
	case addr = <-addrc:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/find?key=ap")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"label":"apricot"`)

	require.Eventually(t, func() bool {
		return a.Catalogs.Catalog(catPath) != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeRejectsPublicListen(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	a.Config.Listen = "0.0.0.0:0"
	require.Error(t, a.Serve(context.Background(), nil))
}
