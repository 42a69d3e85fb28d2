// Package uisite serves pages of a secondary domain from a cached HTML shell
// enriched with per-page head markup, and passes every other request through.
package uisite

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/always-cache/ui-site/cache"
	"github.com/always-cache/ui-site/config"
	"github.com/always-cache/ui-site/metadata"
	"github.com/always-cache/ui-site/metrics"
	"github.com/always-cache/ui-site/pathinfo"
	cachekey "github.com/always-cache/ui-site/pkg/cache-key"
	headrewrite "github.com/always-cache/ui-site/pkg/head-rewrite"
	pathrewrite "github.com/always-cache/ui-site/pkg/path-rewrite"
	"github.com/always-cache/ui-site/rfc9211"
	"github.com/always-cache/ui-site/shell"
)

// KeyPrefix prefixes response cache keys and tags every cached page.
const KeyPrefix = "ui-site:response"

// DefaultMaxAge is the max age of served pages in seconds.
const DefaultMaxAge = 21600

// MetadataStore looks up the head markup of a page.
type MetadataStore interface {
	First(ctx context.Context, filter metadata.Filter, opts metadata.FindOptions) (*metadata.Record, error)
}

type Config struct {
	// Primary domain. Requests on it pass through, and an empty value disables the site.
	MainDomain string
	// Shell identifier, see shell.Loader.
	TemplatePath string
	// Site name appended to page titles by the default shell loader.
	SiteName string
	// Storage for rendered pages.
	Cache cache.CacheProvider
	// Shell loader. A file loader over Cache is used if nil.
	Shells *shell.Loader
	Store  MetadataStore
	// Language detection.
	Paths pathinfo.Options
	// Rules deriving the stored alias from the request path.
	PathRules pathrewrite.Rules
	// Literal replacements applied to stored head markup.
	PayloadRewrites []headrewrite.Replacement
	// Front page head per language, used when the store has no front page record.
	FrontPage map[string]config.FrontPage
	// Max age of served pages in seconds. DefaultMaxAge is used if 0.
	MaxAge int
	// Metrics recorder, optional.
	Metrics *metrics.Recorder
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type Site struct {
	mainDomain   string
	templatePath string
	cache        cache.CacheProvider
	keyer        cachekey.CacheKeyer
	shells       *shell.Loader
	store        MetadataStore
	paths        pathinfo.Options
	rules        pathrewrite.Rules
	rewrites     []headrewrite.Replacement
	frontPage    map[string]config.FrontPage
	cacheControl string
	metrics      *metrics.Recorder
	log          zerolog.Logger
}

// CreateSite initializes the site with the given config.
func CreateSite(config Config) *Site {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("domain", config.MainDomain).
		Logger()

	shells := config.Shells
	if shells == nil {
		shells = shell.NewLoader(shell.LoaderConfig{
			Cache:    config.Cache,
			Sources:  []shell.Source{shell.FileSource{}},
			SiteName: config.SiteName,
			Logger:   &logger,
		})
	}
	maxAge := config.MaxAge
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}

	return &Site{
		mainDomain:   config.MainDomain,
		templatePath: config.TemplatePath,
		cache:        config.Cache,
		keyer:        cachekey.NewCacheKeyer(KeyPrefix),
		shells:       shells,
		store:        config.Store,
		paths:        config.Paths,
		rules:        config.PathRules,
		rewrites:     config.PayloadRewrites,
		frontPage:    config.FrontPage,
		cacheControl: fmt.Sprintf("public, max-age=%d", maxAge),
		metrics:      config.Metrics,
		log:          logger,
	}
}

// Middleware serves site requests and hands everything else to next.
func (s *Site) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.mainDomain == "" {
			next.ServeHTTP(w, r)
			return
		}
		if requestHost(r) == s.mainDomain || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			s.passThrough(w, r, next)
			return
		}
		s.serve(w, r)
	})
}

func (s *Site) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	p := pathinfo.New(r, s.paths)
	key := s.keyer.Key(p.PrefixedPath())
	log := s.requestLogger(r, p)
	cs := rfc9211.CacheStatus{}

	body, ok, err := s.cache.Get(key)
	if err != nil {
		s.fail(w, log, err, "Could not read response cache")
		return
	}
	if ok {
		cs.Hit()
		s.send(w, r, log, body, cs)
		s.metrics.Response(metrics.StatusHit)
		return
	}

	cs.Forward(rfc9211.FwdUriMiss)
	page, err := s.render(r.Context(), log, p)
	if err != nil {
		s.fail(w, log, err, "Could not render page")
		return
	}
	err = s.cache.Put(cache.CacheEntry{
		Key:     key,
		Expires: cache.Permanent,
		Tags:    s.keyer.Tags(key),
		Bytes:   []byte(page),
	})
	if err != nil {
		s.fail(w, log, err, "Could not write response cache")
		return
	}
	log.Trace().Str("key", key).Msg("Stored page")
	cs.Stored()
	s.metrics.Render(time.Since(start))
	s.send(w, r, log, []byte(page), cs)
	s.metrics.Response(metrics.StatusMiss)
}

func (s *Site) send(w http.ResponseWriter, r *http.Request, log zerolog.Logger, body []byte, cs rfc9211.CacheStatus) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", s.cacheControl)
	if s.paths.Negotiate {
		// the same URL renders per Accept-Language
		h.Add("Vary", "Accept-Language")
	}
	h.Set("X-Cache-Status", cs.Legacy())
	h.Add("Cache-Status", cs.String())
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := w.Write(body); err != nil {
			log.Error().Err(err).Msg("Could not write response body to client")
		}
	}
	log.Debug().
		Str("method", r.Method).
		Str("status", cs.Legacy()).
		Int("bytes", len(body)).
		Msg("Sending response to client")
}

func (s *Site) fail(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	s.metrics.Response(metrics.StatusError)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *Site) requestLogger(r *http.Request, p pathinfo.PathInfo) zerolog.Logger {
	ctx := s.log.With().
		Str("path", p.PrefixedPath()).
		Str("lang", p.Language())
	if id, ok := hlog.IDFromRequest(r); ok {
		ctx = ctx.Str("req", id.String())
	}
	return ctx.Logger()
}

func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}
