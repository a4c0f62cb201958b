package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics tracks server-sent event streams.
//
// Metrics:
//   - relay_streams_total: finished streams by model and outcome
//   - relay_stream_units_total: content units forwarded to clients
//   - relay_stream_duration_seconds: stream lifetime histogram
//   - relay_streams_active: streams currently open
type StreamMetrics struct {
	streamsTotal *prometheus.CounterVec
	unitsTotal   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	active       prometheus.Gauge
}

// NewStreamMetrics creates and registers stream metrics with the provided registry.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "streams_total",
				Help:      "Finished streams by terminal state",
			},
			[]string{"model", "outcome"},
		),

		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "stream_units_total",
				Help:      "Content units forwarded to clients",
			},
			[]string{"model"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "stream_duration_seconds",
				Help:      "Stream duration in seconds",
				Buckets:   cfg.StreamDurationBuckets,
			},
			[]string{"outcome"},
		),

		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "streams_active",
				Help:      "Streams currently open",
			},
		),
	}

	registry.MustRegister(
		sm.streamsTotal,
		sm.unitsTotal,
		sm.duration,
		sm.active,
	)

	return sm
}

// Started increments the active gauge.
func (sm *StreamMetrics) Started() {
	sm.active.Inc()
}

// Finished decrements the active gauge and records the outcome.
func (sm *StreamMetrics) Finished(model, outcome string, units int, duration time.Duration) {
	sm.active.Dec()
	sm.streamsTotal.WithLabelValues(model, outcome).Inc()
	if units > 0 {
		sm.unitsTotal.WithLabelValues(model).Add(float64(units))
	}
	sm.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}
