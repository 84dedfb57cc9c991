// Package metrics exposes label rendering metrics through Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sampletag"

// Recorder owns a private registry so several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry
	renders  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cache    *prometheus.CounterVec
	samples  *prometheus.CounterVec
}

// New registers the label metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_renders_total",
			Help:      "Label renders by output format and result (ok or error kind).",
		}, []string{"format", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_render_duration_seconds",
			Help:      "Time spent compositing and encoding a label.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"format"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_cache_lookups_total",
			Help:      "Rendered label cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Sample records written by team and operation.",
		}, []string{"team", "op"}),
	}
}

// ObserveRender records one render attempt. result is "ok" or an error kind.
func (r *Recorder) ObserveRender(format, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.renders.WithLabelValues(format, result).Inc()
	if result == "ok" {
		r.duration.WithLabelValues(format).Observe(d.Seconds())
	}
}

func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cache.WithLabelValues(result).Inc()
}

func (r *Recorder) SampleWritten(team, op string) {
	if r == nil {
		return
	}
	r.samples.WithLabelValues(team, op).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
