package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe states reported in the status field.
const (
	StatusHealthy  = "healthy"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"

	CheckOK     = "ok"
	CheckFailed = "failed"
)

// defaultCheckTimeout bounds each component check when New gets zero.
const defaultCheckTimeout = 5 * time.Second

// ErrCheckTimeout is reported for a check that outlived its timeout.
var ErrCheckTimeout = errors.New("health check timed out")

// CheckFunc probes one component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Status is the body of /health and /ready. APIKeysLoaded is set on
// liveness only, Checks on readiness only.
type Status struct {
	Status        string                 `json:"status"`
	Timestamp     int64                  `json:"timestamp"` // unix seconds
	APIKeysLoaded *int                   `json:"api_keys_loaded,omitempty"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// Checker runs the relay's probes.
type Checker struct {
	timeout time.Duration
	now     func() time.Time

	mu         sync.RWMutex
	checks     map[string]CheckFunc
	keyCounter func() int
}

// New creates a checker whose component checks each get timeout, or five
// seconds when timeout is zero.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checker{
		timeout: timeout,
		now:     time.Now,
		checks:  make(map[string]CheckFunc),
	}
}

// SetKeyCounter sets the source of api_keys_loaded.
func (c *Checker) SetKeyCounter(fn func() int) {
	c.mu.Lock()
	c.keyCounter = fn
	c.mu.Unlock()
}

// RegisterCheck adds or replaces the readiness check called name.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.mu.Lock()
	c.checks[name] = fn
	c.mu.Unlock()
}

// Liveness reports the process as healthy. It reads the in-memory key
// count and never touches a store or the upstream.
func (c *Checker) Liveness() Status {
	c.mu.RLock()
	counter := c.keyCounter
	c.mu.RUnlock()

	s := Status{Status: StatusHealthy, Timestamp: c.now().Unix()}
	if counter != nil {
		n := counter()
		s.APIKeysLoaded = &n
	}
	return s
}

// Readiness runs every registered check concurrently and reports
// not_ready if any of them failed or timed out.
func (c *Checker) Readiness(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		g       errgroup.Group
	)
	for name, fn := range checks {
		g.Go(func() error {
			res := c.run(ctx, fn)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s := Status{Status: StatusReady, Timestamp: c.now().Unix(), Checks: results}
	for _, res := range results {
		if res.Status != CheckOK {
			s.Status = StatusNotReady
			break
		}
	}
	return s
}

// run executes fn under the check timeout. A check that ignores its
// context is abandoned when the timeout fires.
func (c *Checker) run(ctx context.Context, fn CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	res := CheckResult{Status: CheckOK, DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = CheckFailed
		res.Error = err.Error()
	}
	return res
}
