package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to the model backend.
//
// Metrics:
//   - relay_upstream_latency_seconds: time until the upstream answered
//   - relay_upstream_errors_total: failed upstream calls by kind
type UpstreamMetrics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Upstream latency until response headers in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"model"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed upstream calls by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(um.latency, um.errors)

	return um
}

// RecordLatency observes an upstream latency.
func (um *UpstreamMetrics) RecordLatency(model string, latency time.Duration) {
	um.latency.WithLabelValues(model).Observe(latency.Seconds())
}

// RecordError increments the error counter for kind.
func (um *UpstreamMetrics) RecordError(kind string) {
	um.errors.WithLabelValues(kind).Inc()
}
