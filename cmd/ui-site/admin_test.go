package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uisite "github.com/always-cache/ui-site"
	"github.com/always-cache/ui-site/cache"
	"github.com/always-cache/ui-site/config"
	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/metrics"
	"github.com/always-cache/ui-site/pathinfo"
)

func setupAdmin(t *testing.T) (*uisite.Site, http.Handler, http.Handler) {
	t.Helper()
	return setupAdminWithCache(t, cache.NewMemCache())
}

func setupAdminWithCache(t *testing.T, responses cache.CacheProvider) (*uisite.Site, http.Handler, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	shellPath := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(shellPath, []byte("<html><head><title>T</title></head></html>"), 0o644))
	store, err := metadata.NewSQLiteStore(filepath.Join(dir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.Nop()
	recorder := metrics.NewRecorder()
	site := uisite.CreateSite(uisite.Config{
		MainDomain:   "www.example.is",
		TemplatePath: shellPath,
		Cache:        responses,
		Store:        store,
		Paths:        pathinfo.Options{Languages: []string{"is", "en"}, DefaultLanguage: "is"},
		Metrics:      recorder,
		Logger:       &logger,
	})
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("origin"))
	})
	return site, frontRouter(logger, site, origin), adminRouter(site, recorder)
}

func get(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestFrontRouter(t *testing.T) {
	_, front, _ := setupAdmin(t)
	assert.Equal(t, "origin", get(front, "GET", "http://www.example.is/about").Body.String())

	rr := get(front, "GET", "http://ui.example.is/about")
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache-Status"))
	assert.Equal(t, "HIT", get(front, "GET", "http://ui.example.is/about").Header().Get("X-Cache-Status"))
}

func TestAdminPurge(t *testing.T) {
	_, front, admin := setupAdmin(t)
	get(front, "GET", "http://ui.example.is/about")
	get(front, "GET", "http://ui.example.is/en/about")

	rr := get(admin, "POST", "/purge?path=/about")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":1}`, rr.Body.String())
	assert.Equal(t, "MISS", get(front, "GET", "http://ui.example.is/about").Header().Get("X-Cache-Status"))
	assert.Equal(t, "HIT", get(front, "GET", "http://ui.example.is/en/about").Header().Get("X-Cache-Status"))

	rr = get(admin, "POST", "/purge?tag="+url.QueryEscape(uisite.KeyPrefix))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":2}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(admin, "POST", "/purge").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, get(admin, "GET", "/purge?path=/").Code)
}

func TestAdminHealthAndMetrics(t *testing.T) {
	_, front, admin := setupAdmin(t)
	get(front, "GET", "http://ui.example.is/about")

	assert.Equal(t, "ok\n", get(admin, "GET", "/healthz").Body.String())
	body := get(admin, "GET", "/metrics").Body.String()
	assert.True(t, strings.Contains(body, `ui_site_responses_total{status="miss"} 1`), body)
	assert.True(t, strings.Contains(body, "ui_site_render_seconds_count 1"), body)
}

func TestCreateDirector(t *testing.T) {
	director := createDirector("https", "10.0.0.1", "www.example.is")
	req := httptest.NewRequest("GET", "http://ui.example.is/about?x=1", nil)
	director(req)
	assert.Equal(t, "https://10.0.0.1/about?x=1", req.URL.String())
	assert.Equal(t, "www.example.is", req.Host)
}

func TestRequestPurge(t *testing.T) {
	_, front, admin := setupAdmin(t)
	srv := httptest.NewServer(admin)
	defer srv.Close()
	addr := srv.Listener.Addr().String()
	get(front, "GET", "http://ui.example.is/about")
	get(front, "GET", "http://ui.example.is/en/about")

	removed, err := requestPurge(context.Background(), addr, []string{"/about"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "MISS", get(front, "GET", "http://ui.example.is/about").Header().Get("X-Cache-Status"))
	assert.Equal(t, "HIT", get(front, "GET", "http://ui.example.is/en/about").Header().Get("X-Cache-Status"))

	// an address without host reaches the local listener
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	removed, err = requestPurge(context.Background(), ":"+port, nil, []string{uisite.KeyPrefix})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	srv.Close()
	_, err = requestPurge(context.Background(), addr, nil, []string{uisite.KeyPrefix})
	assert.ErrorIs(t, err, errAdminUnavailable)
}

func TestPurgeClearsMemoryTierOfRunningServer(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := cache.NewSQLiteCache(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	tiered, err := cache.NewTieredCache(16, sqlite)
	require.NoError(t, err)
	t.Cleanup(func() { tiered.Close() })
	_, front, admin := setupAdminWithCache(t, tiered)
	srv := httptest.NewServer(admin)
	defer srv.Close()

	get(front, "GET", "http://ui.example.is/about")
	assert.Equal(t, "HIT", get(front, "GET", "http://ui.example.is/about").Header().Get("X-Cache-Status"))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	c := &config.Config{
		AdminListen:     srv.Listener.Addr().String(),
		CacheDB:         filepath.Join(dir, "cache.db"),
		Languages:       []string{"is", "en"},
		DefaultLanguage: "is",
	}
	removed, err := purge(cmd, c, []string{"/about"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "MISS", get(front, "GET", "http://ui.example.is/about").Header().Get("X-Cache-Status"))
}

func TestPurgeWithoutRunningServerUsesCacheDB(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cache.db")
	sqlite, err := cache.NewSQLiteCache(db)
	require.NoError(t, err)
	require.NoError(t, sqlite.Put(cache.CacheEntry{Key: "page", Tags: []string{uisite.KeyPrefix}, Bytes: []byte("p")}))
	require.NoError(t, sqlite.Close())

	// reserve a port nothing listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	c := &config.Config{
		AdminListen:     addr,
		CacheDB:         db,
		Languages:       []string{"is", "en"},
		DefaultLanguage: "is",
	}
	removed, err := purge(cmd, c, nil, []string{uisite.KeyPrefix})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
