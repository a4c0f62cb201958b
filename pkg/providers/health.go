package providers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// healthTracker keeps the ProviderHealth snapshot shared by request
// outcomes and the background prober.
type healthTracker struct {
	name  string
	mu    sync.RWMutex
	state ProviderHealth
}

func newHealthTracker(name string) healthTracker {
	now := time.Now()
	return healthTracker{
		name:  name,
		state: ProviderHealth{IsHealthy: true, LastCheck: now, LastSuccessfulRequest: now},
	}
}

// IsHealthy reports whether fewer than unhealthyAfter requests or probes
// have failed in a row.
func (h *healthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.IsHealthy
}

// GetHealth returns a copy of the current snapshot.
func (h *healthTracker) GetHealth() ProviderHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *healthTracker) updateHealth(success bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &h.state
	s.LastCheck = time.Now()
	if success {
		s.IsHealthy, s.ConsecutiveFailures, s.LastError = true, 0, nil
		s.LastSuccessfulRequest = s.LastCheck
		return
	}

	s.ConsecutiveFailures++
	s.LastError = err
	if s.IsHealthy && s.ConsecutiveFailures >= unhealthyAfter {
		s.IsHealthy = false
		slog.Warn("upstream marked unhealthy", "provider", h.name, "consecutive_failures", s.ConsecutiveFailures, "error", err)
	}
}

func (h *healthTracker) recordRequest(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.TotalRequests++
	if !success {
		h.state.FailedRequests++
	}
}

// ErrNoHealthCheck is returned by HealthCheck when the adapter did not
// install a probe.
var ErrNoHealthCheck = errors.New("no health check configured")

const (
	unhealthyAfter  = 3
	probeTimeout    = 5 * time.Second
	maxProbeBackoff = 5 * time.Minute
)

// SetHealthCheck installs the adapter's probe.
func (p *HTTPProvider) SetHealthCheck(fn func(ctx context.Context) error) {
	p.healthCheck = fn
}

// HealthCheck runs the probe once.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	if p.healthCheck == nil {
		return ErrNoHealthCheck
	}
	return p.healthCheck(ctx)
}

// StartHealthChecker runs the probe every HealthCheckInterval until ctx ends
// or the provider is closed. It is a no-op when the interval is zero.
func (p *HTTPProvider) StartHealthChecker(ctx context.Context) {
	if p.config.HealthCheckInterval <= 0 || p.healthCheck == nil {
		return
	}

	if !p.checkerStarted.CompareAndSwap(false, true) {
		return
	}

	go p.runHealthChecker(ctx)
}

func (p *HTTPProvider) runHealthChecker(ctx context.Context) {
	defer close(p.healthCheckStopped)

	base := p.config.HealthCheckInterval
	slog.Info("upstream health checker started", "provider", p.config.Name, "interval", base)

	timer := time.NewTimer(base)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopHealthCheck:
			return
		case <-timer.C:
		}

		p.probe(ctx)
		timer.Reset(p.nextProbe(base))
	}
}

// nextProbe is the wait before the next probe: the base interval while
// healthy, growing with consecutive failures otherwise.
func (p *HTTPProvider) nextProbe(base time.Duration) time.Duration {
	h := p.GetHealth()
	if h.IsHealthy {
		return base
	}
	return calculateBackoff(h.ConsecutiveFailures, base)
}

// probe runs the health check once under its own deadline and records the
// outcome.
func (p *HTTPProvider) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	wasHealthy := p.IsHealthy()
	start := time.Now()
	err := p.healthCheck(ctx)
	p.updateHealth(err == nil, err)

	switch {
	case err != nil:
		slog.Error("upstream health check failed",
			"provider", p.config.Name,
			"error", err,
			"latency", time.Since(start),
		)
	case !wasHealthy:
		slog.Info("upstream marked healthy", "provider", p.config.Name)
	}
}

// calculateBackoff doubles base per consecutive failure up to three, then
// holds at ten times base. The result never exceeds maxProbeBackoff.
func calculateBackoff(consecutiveFailures int, base time.Duration) time.Duration {
	factor := time.Duration(10)
	switch {
	case consecutiveFailures <= 0:
		factor = 1
	case consecutiveFailures < 4:
		factor = 1 << consecutiveFailures
	}
	return min(base*factor, maxProbeBackoff)
}
