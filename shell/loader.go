// Package shell loads the HTML shell and injects per-page head markup into it.
package shell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/always-cache/ui-site/cache"
	cachekey "github.com/always-cache/ui-site/pkg/cache-key"
	tee "github.com/always-cache/ui-site/pkg/response-writer-tee"
)

// KeyPrefix prefixes shell cache keys and tags every cached shell.
const KeyPrefix = "ui-site:shell"

// DefaultShell is served when no source can provide the shell.
const DefaultShell = `<!DOCTYPE html>
<html>
<head>
    <title>Template does not exist</title>
</head>
<body>
<h1>Template does not exist</h1>
</body>
</html>`

// Source provides shell content by identifier.
type Source interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

var ErrEmptyShell = errors.New("empty shell")

// FileSource reads the shell from disk, the identifier being the file path.
type FileSource struct{}

func (FileSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	b, err := os.ReadFile(id)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmptyShell
	}
	return b, nil
}

// OriginSource requests the shell from the origin handler, the identifier being the path.
type OriginSource struct {
	Handler http.Handler
	// Host header to send, if set.
	Host string
}

func (o OriginSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, err
	}
	if o.Host != "" {
		req.Host = o.Host
	}
	rs := tee.NewResponseSaver(nil)
	o.Handler.ServeHTTP(rs, req)
	if rs.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("origin responded %d for %s", rs.StatusCode(), id)
	}
	if len(rs.Body()) == 0 {
		return nil, ErrEmptyShell
	}
	return rs.Body(), nil
}

type LoaderConfig struct {
	// Storage for loaded shells. An in-memory cache is used if nil.
	Cache cache.CacheProvider
	// Sources tried in order when the shell is not cached.
	Sources []Source
	// Site name appended to page titles.
	SiteName string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Loader resolves shells from cache, then sources, then DefaultShell.
type Loader struct {
	cache    cache.CacheProvider
	keyer    cachekey.CacheKeyer
	sources  []Source
	siteName string
	log      zerolog.Logger
}

func NewLoader(config LoaderConfig) *Loader {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	c := config.Cache
	if c == nil {
		c = cache.NewMemCache()
	}
	return &Loader{
		cache:    c,
		keyer:    cachekey.NewCacheKeyer(KeyPrefix),
		sources:  config.Sources,
		siteName: config.SiteName,
		log:      logger.With().Str("component", "shell").Logger(),
	}
}

// Load returns the shell content for id.
// Cache failures are returned; source failures fall through to the next tier.
func (l *Loader) Load(ctx context.Context, id string) (string, error) {
	key := l.keyer.Key(id)
	if b, ok, err := l.cache.Get(key); err != nil {
		return "", fmt.Errorf("get shell %s: %w", id, err)
	} else if ok && len(b) > 0 {
		l.log.Trace().Str("key", key).Msg("Shell from cache")
		return string(b), nil
	}

	for _, source := range l.sources {
		b, err := source.Fetch(ctx, id)
		if err != nil {
			l.log.Debug().Err(err).Str("id", id).Msgf("Shell not available from %T", source)
			continue
		}
		err = l.cache.Put(cache.CacheEntry{
			Key:     key,
			Expires: cache.Permanent,
			Tags:    l.keyer.Tags(key),
			Bytes:   b,
		})
		if err != nil {
			return "", fmt.Errorf("store shell %s: %w", id, err)
		}
		l.log.Trace().Str("key", key).Msgf("Shell stored from %T", source)
		return string(b), nil
	}

	l.log.Warn().Str("id", id).Msg("Shell could not be loaded, using default")
	return DefaultShell, nil
}

// New returns a fresh document over the shell for id.
func (l *Loader) New(ctx context.Context, id string) (*Document, error) {
	content, err := l.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewDocument(content, l.siteName), nil
}

// Invalidate drops every cached shell.
func (l *Loader) Invalidate() (int, error) {
	return l.cache.InvalidateTags(KeyPrefix)
}
