package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent rendered HTML
// or template shells. Entries are permanent unless they carry an expiry,
// and they can be removed in bulk by any of the tags they were stored with.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cached value for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// A missing or expired entry is not an error.
	Get(key string) ([]byte, bool, error)
	// Put stores the given entry, replacing any previous entry with the same key.
	// A zero Expires means the entry never expires.
	Put(ce CacheEntry) error
	// Purge removes the cache entry for the given key.
	Purge(key string) error
	// InvalidateTags removes every entry stored with at least one of the tags.
	// It returns the number of entries removed.
	InvalidateTags(tags ...string) (int, error)
	// Close releases resources held by the provider.
	Close() error
}

// CacheEntry is a single stored value.
type CacheEntry struct {
	Key     string
	Expires time.Time
	Tags    []string
	Bytes   []byte
}

// Permanent is the expiry of entries that live until explicitly invalidated.
var Permanent = time.Time{}

func (ce CacheEntry) expired(now time.Time) bool {
	return !ce.Expires.IsZero() && now.After(ce.Expires)
}

// MemoryDB is the filename that opens an in-memory sqlite database, shared
// by every cache opened with it in the process.
const MemoryDB = "memory"

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty or MemoryDB, the process wide in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	memory := filename == "" || filename == MemoryDB
	if memory {
		filename = "file:ui-site-cache?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", withBusyTimeout(filename))
	if err != nil {
		return SQLiteCache{}, err
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER NOT NULL DEFAULT 0,
			bytes BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS cache_tags (
			tag TEXT NOT NULL,
			key TEXT NOT NULL,
			PRIMARY KEY (tag, key)
		)`,
		"CREATE INDEX IF NOT EXISTS cache_tags_key_idx ON cache_tags (key)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func withBusyTimeout(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func (s SQLiteCache) Get(key string) ([]byte, bool, error) {
	var expires int64
	var bytes []byte
	err := s.db.QueryRow("SELECT expires, bytes FROM cache WHERE key = ?", key).Scan(&expires, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires > 0 && time.Now().After(time.Unix(expires, 0)) {
		return nil, false, nil
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(ce CacheEntry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	var expires int64
	if !ce.Expires.IsZero() {
		expires = ce.Expires.Unix()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("INSERT OR REPLACE INTO cache (key, expires, bytes) VALUES (?, ?, ?)",
		ce.Key, expires, ce.Bytes); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM cache_tags WHERE key = ?", ce.Key); err != nil {
		return err
	}
	for _, tag := range ce.Tags {
		if _, err := tx.Exec("INSERT OR IGNORE INTO cache_tags (tag, key) VALUES (?, ?)", tag, ce.Key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM cache WHERE key = ?", key); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM cache_tags WHERE key = ?", key); err != nil {
		return err
	}
	return tx.Commit()
}

func (s SQLiteCache) InvalidateTags(tags ...string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tags)), ", ")
	args := make([]any, len(tags))
	for i, tag := range tags {
		args[i] = tag
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	keys := fmt.Sprintf("SELECT key FROM cache_tags WHERE tag IN (%s)", placeholders)
	res, err := tx.Exec("DELETE FROM cache WHERE key IN ("+keys+")", args...)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM cache_tags WHERE key IN ("+keys+")", args...); err != nil {
		return 0, err
	}
	return int(removed), tx.Commit()
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}
