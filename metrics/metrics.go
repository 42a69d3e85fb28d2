// Package metrics exposes pipeline outcomes as prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Response outcomes.
const (
	StatusHit   = "hit"
	StatusMiss  = "miss"
	StatusPass  = "pass"
	StatusError = "error"
)

// Recorder counts responses and times renders. A nil Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	responses   *prometheus.CounterVec
	render      prometheus.Histogram
	invalidated prometheus.Counter
}

// NewRecorder registers the metrics on a new registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ui_site_responses_total",
			Help: "Responses by cache outcome.",
		}, []string{"status"}),
		render: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ui_site_render_seconds",
			Help:    "Time to build a page on a cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ui_site_invalidated_entries_total",
			Help: "Cache entries removed by invalidation.",
		}),
	}
	r.registry.MustRegister(
		r.responses,
		r.render,
		r.invalidated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Response(status string) {
	if r == nil {
		return
	}
	r.responses.WithLabelValues(status).Inc()
}

func (r *Recorder) Render(d time.Duration) {
	if r == nil {
		return
	}
	r.render.Observe(d.Seconds())
}

func (r *Recorder) Invalidated(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.invalidated.Add(float64(n))
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
