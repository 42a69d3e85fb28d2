package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]CacheProvider {
	t.Helper()
	sqlite, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	tieredBacking, err := NewSQLiteCache(filepath.Join(t.TempDir(), "tiered.db"))
	require.NoError(t, err)
	tiered, err := NewTieredCache(8, tieredBacking)
	require.NoError(t, err)
	ps := map[string]CacheProvider{
		"sqlite": sqlite,
		"memory": NewMemCache(),
		"tiered": tiered,
	}
	t.Cleanup(func() {
		for _, p := range ps {
			p.Close()
		}
	})
	return ps
}

func TestGetMissingKey(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			bytes, ok, err := p.Get("nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, bytes)
		})
	}
}

func TestPutAndGetPermanent(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put(CacheEntry{Key: "k", Bytes: []byte("v1")}))
			require.NoError(t, p.Put(CacheEntry{Key: "k", Bytes: []byte("v2")}))
			bytes, ok, err := p.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v2", string(bytes))
		})
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put(CacheEntry{
				Key:     "old",
				Expires: time.Now().Add(-time.Hour),
				Bytes:   []byte("stale"),
			}))
			_, ok, err := p.Get("old")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestInvalidateTags(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put(CacheEntry{Key: "a", Tags: []string{"response", "a"}, Bytes: []byte("a")}))
			require.NoError(t, p.Put(CacheEntry{Key: "b", Tags: []string{"response", "b"}, Bytes: []byte("b")}))
			require.NoError(t, p.Put(CacheEntry{Key: "c", Tags: []string{"shell"}, Bytes: []byte("c")}))

			removed, err := p.InvalidateTags("a")
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			removed, err = p.InvalidateTags("response", "missing")
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			for _, key := range []string{"a", "b"} {
				_, ok, err := p.Get(key)
				require.NoError(t, err)
				assert.False(t, ok, key)
			}
			bytes, ok, err := p.Get("c")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "c", string(bytes))
		})
	}
}

func TestRetaggingReplacesTags(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put(CacheEntry{Key: "k", Tags: []string{"old"}, Bytes: []byte("1")}))
			require.NoError(t, p.Put(CacheEntry{Key: "k", Tags: []string{"new"}, Bytes: []byte("2")}))
			removed, err := p.InvalidateTags("old")
			require.NoError(t, err)
			assert.Equal(t, 0, removed)
			_, ok, _ := p.Get("k")
			assert.True(t, ok)
		})
	}
}

func TestPurge(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put(CacheEntry{Key: "k", Tags: []string{"t"}, Bytes: []byte("v")}))
			require.NoError(t, p.Purge("k"))
			_, ok, err := p.Get("k")
			require.NoError(t, err)
			assert.False(t, ok)
			require.NoError(t, p.Purge("never-stored"))
		})
	}
}

func TestTieredCacheServesFromNextTier(t *testing.T) {
	next := NewMemCache()
	require.NoError(t, next.Put(CacheEntry{Key: "k", Bytes: []byte("from next")}))
	tiered, err := NewTieredCache(2, next)
	require.NoError(t, err)

	bytes, ok, err := tiered.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from next", string(bytes))

	// the memory tier now answers even when the next tier loses the entry
	require.NoError(t, next.Purge("k"))
	_, ok, _ = tiered.Get("k")
	assert.True(t, ok)

	_, err = tiered.InvalidateTags("anything")
	require.NoError(t, err)
	_, ok, _ = tiered.Get("k")
	assert.False(t, ok)
}

// pausingCache pauses its first Get after reading, until released.
type pausingCache struct {
	MemCache
	read    chan struct{}
	release chan struct{}
	once    *sync.Once
}

func (p pausingCache) Get(key string) ([]byte, bool, error) {
	bytes, ok, err := p.MemCache.Get(key)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return bytes, ok, err
}

func TestTieredCacheDoesNotKeepValuesReadBeforeInvalidation(t *testing.T) {
	for name, invalidate := range map[string]func(*TieredCache) error{
		"tags": func(tc *TieredCache) error {
			_, err := tc.InvalidateTags("pages")
			return err
		},
		"purge": func(tc *TieredCache) error {
			return tc.Purge("page")
		},
	} {
		t.Run(name, func(t *testing.T) {
			next := pausingCache{
				MemCache: NewMemCache(),
				read:     make(chan struct{}),
				release:  make(chan struct{}),
				once:     &sync.Once{},
			}
			require.NoError(t, next.Put(CacheEntry{Key: "page", Tags: []string{"pages"}, Bytes: []byte("old")}))
			tiered, err := NewTieredCache(8, next)
			require.NoError(t, err)

			done := make(chan []byte)
			go func() {
				bytes, _, _ := tiered.Get("page")
				done <- bytes
			}()
			<-next.read
			require.NoError(t, invalidate(tiered))
			close(next.release)
			assert.Equal(t, "old", string(<-done))

			_, ok, err := tiered.Get("page")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTieredCacheKeepsValuesWithoutInvalidation(t *testing.T) {
	next := NewMemCache()
	tiered, err := NewTieredCache(8, next)
	require.NoError(t, err)
	require.NoError(t, tiered.Put(CacheEntry{Key: "k", Bytes: []byte("v")}))
	require.NoError(t, next.Purge("k"))

	bytes, ok, err := tiered.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(bytes))
}

func TestMemoryDBIsSharedInProcess(t *testing.T) {
	a, err := NewSQLiteCache(MemoryDB)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteCache("")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Put(CacheEntry{Key: "shared", Bytes: []byte("v")}))
	bytes, ok, err := b.Get("shared")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(bytes))
	require.NoError(t, b.Purge("shared"))
}
