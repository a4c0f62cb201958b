package metrics

import (
	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics tracks authentication outcomes.
//
// Metrics:
//   - relay_auth_attempts_total: attempts by result
type AuthMetrics struct {
	attempts *prometheus.CounterVec
}

// NewAuthMetrics creates and registers auth metrics with the provided registry.
func NewAuthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuthMetrics {
	am := &AuthMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "auth_attempts_total",
				Help:      "Authentication attempts by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(am.attempts)

	return am
}

// RecordAttempt increments the counter for result.
func (am *AuthMetrics) RecordAttempt(result string) {
	am.attempts.WithLabelValues(result).Inc()
}
