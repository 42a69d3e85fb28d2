package shell

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/always-cache/ui-site/cache"
)

type countingSource struct {
	content []byte
	err     error
	calls   int
}

func (s *countingSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	s.calls++
	return s.content, s.err
}

type failingCache struct {
	cache.MemCache
}

func (failingCache) Get(key string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func newTestLoader(c cache.CacheProvider, sources ...Source) *Loader {
	logger := zerolog.Nop()
	return NewLoader(LoaderConfig{Cache: c, Sources: sources, SiteName: "Bioborgin", Logger: &logger})
}

func TestLoaderCachesSourceContent(t *testing.T) {
	src := &countingSource{content: []byte(testShell)}
	l := newTestLoader(cache.NewMemCache(), src)

	for i := 0; i < 3; i++ {
		content, err := l.Load(context.Background(), "/shell.html")
		require.NoError(t, err)
		assert.Equal(t, testShell, content)
	}
	assert.Equal(t, 1, src.calls)

	n, err := l.Invalidate()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = l.Load(context.Background(), "/shell.html")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestLoaderTriesSourcesInOrder(t *testing.T) {
	failing := &countingSource{err: os.ErrNotExist}
	working := &countingSource{content: []byte("<title>B</title>")}
	l := newTestLoader(cache.NewMemCache(), failing, working)

	content, err := l.Load(context.Background(), "/shell.html")
	require.NoError(t, err)
	assert.Equal(t, "<title>B</title>", content)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestLoaderFallsBackToDefaultShell(t *testing.T) {
	c := cache.NewMemCache()
	src := &countingSource{err: os.ErrNotExist}
	l := newTestLoader(c, src)

	d, err := l.New(context.Background(), "/missing.html")
	require.NoError(t, err)
	assert.Equal(t, DefaultShell, d.Original())

	// the default shell is not cached
	_, err = l.Load(context.Background(), "/missing.html")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestLoaderPropagatesCacheFailure(t *testing.T) {
	l := newTestLoader(failingCache{cache.NewMemCache()}, &countingSource{content: []byte(testShell)})
	_, err := l.New(context.Background(), "/shell.html")
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shell.html")
	require.NoError(t, os.WriteFile(path, []byte(testShell), 0o644))

	b, err := FileSource{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, testShell, string(b))

	empty := filepath.Join(dir, "empty.html")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = FileSource{}.Fetch(context.Background(), empty)
	assert.ErrorIs(t, err, ErrEmptyShell)

	_, err = FileSource{}.Fetch(context.Background(), filepath.Join(dir, "missing.html"))
	assert.Error(t, err)
}

func TestOriginSource(t *testing.T) {
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shell":
			assert.Equal(t, "www.example.is", r.Host)
			w.Write([]byte(testShell))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
	src := OriginSource{Handler: origin, Host: "www.example.is"}

	b, err := src.Fetch(context.Background(), "/shell")
	require.NoError(t, err)
	assert.Equal(t, testShell, string(b))

	_, err = src.Fetch(context.Background(), "/empty")
	assert.ErrorIs(t, err, ErrEmptyShell)

	_, err = src.Fetch(context.Background(), "/missing")
	assert.Error(t, err)
}
