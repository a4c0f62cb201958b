package metrics

import (
	"mercator-hq/relay/pkg/keys"

	"github.com/prometheus/client_golang/prometheus"
)

// KeyStatsSource reports registry statistics. *keys.Registry satisfies it.
type KeyStatsSource interface {
	Stats() keys.Stats
}

// RegisterKeyStats exposes registry statistics as gauges evaluated at
// scrape time:
//
//   - relay_api_keys{state="active|inactive"}
//   - relay_api_key_usage_total
//   - relay_api_keys_recently_used
//
// Only the first call has an effect.
func (c *Collector) RegisterKeyStats(src KeyStatsSource) {
	if !c.active() || src == nil {
		return
	}

	c.keyStatsOnce.Do(func() {
		ns := c.config.Namespace
		c.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace:   ns,
					Name:        "api_keys",
					Help:        "API keys in the registry by state",
					ConstLabels: prometheus.Labels{"state": "active"},
				},
				func() float64 { return float64(src.Stats().Active) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace:   ns,
					Name:        "api_keys",
					Help:        "API keys in the registry by state",
					ConstLabels: prometheus.Labels{"state": "inactive"},
				},
				func() float64 { return float64(src.Stats().Inactive) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: ns,
					Name:      "api_key_usage_total",
					Help:      "Sum of successful validations across all keys",
				},
				func() float64 { return float64(src.Stats().TotalUsage) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: ns,
					Name:      "api_keys_recently_used",
					Help:      "Keys used within the last hour",
				},
				func() float64 { return float64(src.Stats().RecentUsage) },
			),
		)
	})
}
