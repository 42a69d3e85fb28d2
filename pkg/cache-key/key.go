package cachekey

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const prefixSeparator = ":"

// CacheKeyer derives cache keys from semantic strings such as a template
// path or a request path.
type CacheKeyer struct {
	// Key prefix, also used as the tag for all keys of this keyer.
	Prefix string
}

func NewCacheKeyer(prefix string) CacheKeyer {
	return CacheKeyer{Prefix: prefix}
}

// Key returns the prefixed fingerprint of the semantic key.
// Equal input always yields an equal key, across processes and restarts.
func (c CacheKeyer) Key(semantic string) string {
	return c.Prefix + prefixSeparator + Fingerprint(semantic)
}

// Tags returns the invalidation tags for a key: the keyer-wide prefix and the key itself.
func (c CacheKeyer) Tags(key string) []string {
	return []string{c.Prefix, key}
}

// Fingerprint is the hex encoded BLAKE3 hash of s.
func Fingerprint(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
