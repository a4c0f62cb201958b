package metrics

import (
	"sync"
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the entry point for all relay metrics. Every Record method
// is safe to call on a nil or disabled collector.
type Collector struct {
	config   *config.MetricsConfig
	enabled  bool
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	authMetrics     *AuthMetrics
	streamMetrics   *StreamMetrics
	upstreamMetrics *UpstreamMetrics

	keyStatsOnce sync.Once

	// Model names come from clients, so their label values are capped.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector. If registry is nil a fresh
// registry is created; the process-global default registry is never used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.StreamDurationBuckets) == 0 {
		cfg.StreamDurationBuckets = config.DefaultStreamDurationBuckets
	}

	c := &Collector{
		config:             cfg,
		enabled:            config.BoolValue(cfg.Enabled, config.DefaultMetricsEnabled),
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.authMetrics = NewAuthMetrics(cfg, registry)
	c.streamMetrics = NewStreamMetrics(cfg, registry)
	c.upstreamMetrics = NewUpstreamMetrics(cfg, registry)

	return c
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.active()
}

// RecordRequest records a completed HTTP request.
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if !c.active() {
		return
	}
	c.requestMetrics.RecordRequest(route, method, status, duration)
}

// RecordAdmissionRejected records a request turned away by the concurrency gate.
func (c *Collector) RecordAdmissionRejected() {
	if !c.active() {
		return
	}
	c.requestMetrics.RecordAdmissionRejected()
}

// RecordAuth records an authentication outcome
// ("ok", "missing", "invalid", "break_glass", "disabled", "forbidden").
func (c *Collector) RecordAuth(result string) {
	if !c.active() {
		return
	}
	c.authMetrics.RecordAttempt(result)
}

// StreamStarted marks a stream as in flight.
func (c *Collector) StreamStarted() {
	if !c.active() {
		return
	}
	c.streamMetrics.Started()
}

// StreamFinished records a stream's terminal state and size.
func (c *Collector) StreamFinished(model, outcome string, units int, duration time.Duration) {
	if !c.active() {
		return
	}
	c.streamMetrics.Finished(c.modelLabel(model), outcome, units, duration)
}

// RecordUpstreamLatency records the time to the upstream's first byte.
func (c *Collector) RecordUpstreamLatency(model string, latency time.Duration) {
	if !c.active() {
		return
	}
	c.upstreamMetrics.RecordLatency(c.modelLabel(model), latency)
}

// RecordUpstreamError records a failed upstream call by kind
// ("empty_response", "timeout", "server_error", "transport", ...).
func (c *Collector) RecordUpstreamError(kind string) {
	if !c.active() {
		return
	}
	c.upstreamMetrics.RecordError(kind)
}

func (c *Collector) modelLabel(model string) string {
	if model == "" {
		return "unknown"
	}
	if !c.cardinalityLimiter.Allow(model) {
		return "other"
	}
	return model
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the label value is already known or still fits
// under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
