package cache

import (
	"sync"
	"time"
)

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]CacheEntry
	tags  map[string]map[string]struct{}
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]CacheEntry),
		tags:  make(map[string]map[string]struct{}),
	}
}

func (m MemCache) Get(key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok || entry.expired(time.Now()) {
		return nil, false, nil
	}
	return entry.Bytes, true, nil
}

func (m MemCache) Put(ce CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.remove(ce.Key)
	m.db[ce.Key] = ce
	for _, tag := range ce.Tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[ce.Key] = struct{}{}
	}
	return nil
}

func (m MemCache) Purge(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.remove(key)
	return nil
}

func (m MemCache) InvalidateTags(tags ...string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	removed := 0
	for _, tag := range tags {
		for key := range m.tags[tag] {
			if m.remove(key) {
				removed++
			}
		}
	}
	return removed, nil
}

func (m MemCache) Close() error {
	return nil
}

// remove deletes the entry and its tag index. The caller holds the write lock.
func (m MemCache) remove(key string) bool {
	entry, ok := m.db[key]
	if !ok {
		return false
	}
	delete(m.db, key)
	for _, tag := range entry.Tags {
		delete(m.tags[tag], key)
		if len(m.tags[tag]) == 0 {
			delete(m.tags, tag)
		}
	}
	return true
}
