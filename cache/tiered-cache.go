package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type tieredEntry struct {
	expires time.Time
	bytes   []byte
}

// TieredCache keeps the most recently used entries of another provider in memory.
// Tag invalidation is passed through and empties the memory tier, since the
// memory tier does not know the tags of entries it copied on read.
type TieredCache struct {
	l1   *lru.Cache[string, tieredEntry]
	next CacheProvider
	// generation counts invalidations. A fill started in an older generation
	// may carry a removed value and is not kept in memory.
	mutex      *sync.Mutex
	generation uint64
}

// NewTieredCache puts an LRU of the given size in front of next.
func NewTieredCache(size int, next CacheProvider) (*TieredCache, error) {
	l1, err := lru.New[string, tieredEntry](size)
	if err != nil {
		return nil, err
	}
	return &TieredCache{l1: l1, next: next, mutex: &sync.Mutex{}}, nil
}

func (t *TieredCache) Get(key string) ([]byte, bool, error) {
	if e, ok := t.l1.Get(key); ok {
		if e.expires.IsZero() || time.Now().Before(e.expires) {
			return e.bytes, true, nil
		}
		t.l1.Remove(key)
	}
	gen := t.currentGeneration()
	bytes, ok, err := t.next.Get(key)
	if err != nil || !ok {
		return bytes, ok, err
	}
	// expiry of entries read from the next tier is unknown, they are only
	// served from memory until the next invalidation or eviction
	t.fill(gen, key, tieredEntry{bytes: bytes})
	return bytes, true, nil
}

func (t *TieredCache) Put(ce CacheEntry) error {
	gen := t.currentGeneration()
	if err := t.next.Put(ce); err != nil {
		t.l1.Remove(ce.Key)
		return err
	}
	t.fill(gen, ce.Key, tieredEntry{expires: ce.Expires, bytes: ce.Bytes})
	return nil
}

func (t *TieredCache) Purge(key string) error {
	err := t.next.Purge(key)
	t.invalidate(func() { t.l1.Remove(key) })
	return err
}

func (t *TieredCache) InvalidateTags(tags ...string) (int, error) {
	n, err := t.next.InvalidateTags(tags...)
	t.invalidate(t.l1.Purge)
	return n, err
}

func (t *TieredCache) Close() error {
	t.invalidate(t.l1.Purge)
	return t.next.Close()
}

func (t *TieredCache) currentGeneration() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.generation
}

// fill adds e unless an invalidation ran since gen was read.
func (t *TieredCache) fill(gen uint64, key string, e tieredEntry) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if gen != t.generation {
		return
	}
	t.l1.Add(key, e)
}

// invalidate runs drop after the next tier was cleared, so no fill that read
// the old value can land after it.
func (t *TieredCache) invalidate(drop func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.generation++
	drop()
}
