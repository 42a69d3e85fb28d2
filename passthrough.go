package uisite

import (
	"net/http"
	"slices"
	"time"

	"github.com/always-cache/ui-site/metrics"
	"github.com/always-cache/ui-site/pathinfo"
	cacheinvalidate "github.com/always-cache/ui-site/pkg/cache-invalidate"
	tee "github.com/always-cache/ui-site/pkg/response-writer-tee"
	"github.com/always-cache/ui-site/rfc9111"
	"github.com/always-cache/ui-site/rfc9211"
	"github.com/always-cache/ui-site/shell"
)

// passThrough forwards r to next and applies the Cache-Invalidate
// headers of successful responses to unsafe requests.
func (s *Site) passThrough(w http.ResponseWriter, r *http.Request, next http.Handler) {
	cs := rfc9211.CacheStatus{}
	if requestHost(r) == s.mainDomain {
		cs.Forward(rfc9211.FwdBypass)
	} else {
		cs.Forward(rfc9211.FwdMethod)
	}
	w.Header().Add("Cache-Status", cs.String())

	if !rfc9111.UnsafeRequest(r) {
		next.ServeHTTP(w, r)
		s.metrics.Response(metrics.StatusPass)
		return
	}
	rwtee := tee.NewResponseSaver(w)
	next.ServeHTTP(rwtee, r)
	s.metrics.Response(metrics.StatusPass)

	status := rwtee.StatusCode()
	if status == 0 {
		status = http.StatusOK
	}
	if !rfc9111.NonErrorStatus(status) {
		return
	}
	for _, inv := range cacheinvalidate.GetInvalidations(r, rwtee.Invalidations()) {
		inv := inv
		if inv.Delay > 0 {
			time.AfterFunc(inv.Delay, func() { s.applyInvalidation(inv) })
		} else {
			s.applyInvalidation(inv)
		}
	}
}

func (s *Site) applyInvalidation(inv cacheinvalidate.Invalidation) {
	var err error
	if inv.Tag != "" {
		_, err = s.InvalidateTags(inv.Tag)
	} else {
		err = s.Purge(inv.Path)
	}
	if err != nil {
		s.log.Error().Err(err).Str("path", inv.Path).Str("tag", inv.Tag).Msg("Could not invalidate")
	}
}

// Purge drops the cached page of a public path such as /en/news/widget.
func (s *Site) Purge(path string) error {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	opts := s.paths
	opts.Negotiate = false
	key := s.keyer.Key(pathinfo.New(req, opts).PrefixedPath())
	s.log.Trace().Str("key", key).Str("path", path).Msg("Purging page")
	if err := s.cache.Purge(key); err != nil {
		return err
	}
	s.metrics.Invalidated(1)
	return nil
}

// InvalidateTags drops cached pages or shells by tag.
// The shell tag also drops every page, as pages embed the shell.
func (s *Site) InvalidateTags(tags ...string) (int, error) {
	removed := 0
	all := append([]string{}, tags...)
	if slices.Contains(tags, shell.KeyPrefix) {
		n, err := s.shells.Invalidate()
		if err != nil {
			return 0, err
		}
		removed += n
		all = append(all, KeyPrefix)
	}
	n, err := s.cache.InvalidateTags(all...)
	removed += n
	s.metrics.Invalidated(removed)
	s.log.Debug().Strs("tags", all).Int("removed", removed).Msg("Invalidated tags")
	return removed, err
}
