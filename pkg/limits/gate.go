package limits

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Acquire when the caller's context ends before a
// slot frees up.
var ErrBusy = errors.New("limits: no admission slot available")

// RejectionRecorder is notified when a request gives up waiting for a slot.
// *metrics.Collector satisfies it.
type RejectionRecorder interface {
	RecordAdmissionRejected()
}

// ConcurrencyGate bounds the number of simultaneous upstream calls.
//
// Unlike a fail-fast limiter, Acquire queues: a request waits for a slot
// until its context ends. Waiters are served in FIFO order.
//
// # Example
//
//	gate := limits.NewConcurrencyGate(4)
//	if err := gate.Acquire(ctx); err != nil {
//	    // 503 server_busy
//	}
//	defer gate.Release()
//
// A gate with a limit of zero or less admits everything.
type ConcurrencyGate struct {
	sem   *semaphore.Weighted
	limit int64

	inFlight atomic.Int64
	waiting  atomic.Int64

	recorder RejectionRecorder
}

// GateOption configures a ConcurrencyGate.
type GateOption func(*ConcurrencyGate)

// WithRejectionRecorder reports abandoned waits to r.
func WithRejectionRecorder(r RejectionRecorder) GateOption {
	return func(g *ConcurrencyGate) {
		g.recorder = r
	}
}

// NewConcurrencyGate creates a gate admitting at most limit holders.
func NewConcurrencyGate(limit int, opts ...GateOption) *ConcurrencyGate {
	g := &ConcurrencyGate{limit: int64(limit)}
	if limit > 0 {
		g.sem = semaphore.NewWeighted(int64(limit))
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until a slot is free or ctx ends. On success the caller
// MUST call Release. On failure ErrBusy is returned, wrapping nothing; the
// context error is available from ctx.
func (g *ConcurrencyGate) Acquire(ctx context.Context) error {
	if g.sem == nil {
		g.inFlight.Add(1)
		return nil
	}

	// Fast path keeps the waiting gauge honest for uncontended calls.
	if g.sem.TryAcquire(1) {
		g.inFlight.Add(1)
		return nil
	}

	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)

	if err != nil {
		if g.recorder != nil {
			g.recorder.RecordAdmissionRejected()
		}
		return ErrBusy
	}
	g.inFlight.Add(1)
	return nil
}

// Release returns a slot obtained by Acquire.
func (g *ConcurrencyGate) Release() {
	g.inFlight.Add(-1)
	if g.sem != nil {
		g.sem.Release(1)
	}
}

// Limit returns the configured ceiling; zero or less means unlimited.
func (g *ConcurrencyGate) Limit() int {
	return int(g.limit)
}

// InFlight returns the number of current holders.
func (g *ConcurrencyGate) InFlight() int {
	return int(g.inFlight.Load())
}

// Waiting returns the number of callers queued in Acquire.
func (g *ConcurrencyGate) Waiting() int {
	return int(g.waiting.Load())
}
