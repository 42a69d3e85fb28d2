package cacheinvalidate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Invalidation represents a single `Cache-Invalidate` entry.
// Exactly one of Path and Tag is set.
type Invalidation struct {
	// Fully resolved relative path to the resource.
	// Equivalent to `url.URL.Path`.
	Path string
	// Cache tag to drop, from the `tag=name` form.
	Tag string
	// Invalidation delay, i.e. drop the entry after this duration.
	Delay time.Duration
}

var (
	delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)
	tagDirective   = regexp.MustCompile(`(?i)^\s*tag=([^;\s]+)`)
)

// GetInvalidations parses the `Cache-Invalidate` values of a response to req.
// The request URL is used in order to resolve potentially relative paths.
func GetInvalidations(req *http.Request, values []string) []Invalidation {
	invalidations := make([]Invalidation, 0, len(values))
	for _, value := range values {
		inv := Invalidation{Delay: getDelay(value)}
		if m := tagDirective.FindStringSubmatch(value); m != nil {
			inv.Tag = m[1]
		} else {
			first := strings.TrimSpace(strings.Split(value, ";")[0])
			if first == "" {
				continue
			}
			inv.Path = getURL(req, first).Path
		}
		invalidations = append(invalidations, inv)
	}
	return invalidations
}

func getURL(r *http.Request, possiblyRelativeURL string) *url.URL {
	base := &url.URL{Path: "/"}
	if r != nil && r.URL != nil {
		base = r.URL
	}
	return base.ResolveReference(&url.URL{Path: possiblyRelativeURL})
}

// getDelay returns the delay directive `delay=N` in seconds, or 0.
func getDelay(value string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(value); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
