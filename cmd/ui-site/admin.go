package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	uisite "github.com/always-cache/ui-site"
	"github.com/always-cache/ui-site/metrics"
)

// adminRouter serves health, metrics and cache purging.
//
//	POST /purge?path=/en/news/widget&tag=ui-site:shell
func adminRouter(site *uisite.Site, recorder *metrics.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", recorder.Handler())
	r.Post("/purge", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		paths, tags := q["path"], q["tag"]
		if len(paths) == 0 && len(tags) == 0 {
			http.Error(w, "path or tag required", http.StatusBadRequest)
			return
		}
		removed := 0
		for _, p := range paths {
			if err := site.Purge(p); err != nil {
				hlog.FromRequest(r).Error().Err(err).Str("path", p).Msg("Could not purge")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			removed++
		}
		if len(tags) > 0 {
			n, err := site.InvalidateTags(tags...)
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Strs("tags", tags).Msg("Could not invalidate")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			removed += n
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"removed": removed})
	})
	return r
}

// errAdminUnavailable means no server answered on the admin address.
var errAdminUnavailable = errors.New("admin listener unavailable")

// requestPurge asks the server listening on addr to purge paths and tags,
// so its memory tier is cleared along with the cache db.
func requestPurge(ctx context.Context, addr string, paths, tags []string) (int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("admin address %q: %w", addr, err)
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		host = "127.0.0.1"
	}
	q := url.Values{"path": paths, "tag": tags}
	target := "http://" + net.JoinHostPort(host, port) + "/purge?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return 0, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errAdminUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("admin purge: %s", res.Status)
	}
	var reply struct {
		Removed int `json:"removed"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return 0, fmt.Errorf("admin purge reply: %w", err)
	}
	return reply.Removed, nil
}
