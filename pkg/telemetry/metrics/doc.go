// Package metrics provides Prometheus metrics collection for the relay.
//
// # Overview
//
// The Collector owns a private prometheus.Registry and groups metrics by
// concern:
//
//   - Request metrics: HTTP requests by route and status, admission rejections
//   - Auth metrics: authentication outcomes
//   - Stream metrics: stream outcomes, units forwarded, duration, active streams
//   - Upstream metrics: upstream latency and error kinds
//   - Key metrics: registry size and usage, read on scrape
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RegisterKeyStats(registry)
//	mux.Handle("/metrics", collector.Handler())
//
// A nil *Collector is valid and records nothing, so components can take
// one unconditionally.
package metrics
