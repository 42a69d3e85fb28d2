package main

import (
	"github.com/always-cache/ui-site/cache"
	"github.com/always-cache/ui-site/config"
)

// openCache opens the cache database, with a memory tier in front when configured.
func openCache(c *config.Config) (cache.CacheProvider, error) {
	sqlite, err := cache.NewSQLiteCache(c.CacheDB)
	if err != nil {
		return nil, err
	}
	if c.MemoryCacheSize == 0 {
		return sqlite, nil
	}
	tiered, err := cache.NewTieredCache(c.MemoryCacheSize, sqlite)
	if err != nil {
		sqlite.Close()
		return nil, err
	}
	return tiered, nil
}
