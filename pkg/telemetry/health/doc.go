// Package health serves the relay's probe endpoints.
//
//   - /health: liveness, reports how many API keys are loaded
//   - /ready: readiness, runs every registered component check
//   - /version: build information
//
// Component checks are plain functions:
//
//	checker := health.New(5 * time.Second)
//	checker.SetKeyCounter(registry.Len)
//	checker.RegisterCheck("key_store", func(ctx context.Context) error {
//	    _, err := registry.Store().ModTime(ctx)
//	    return err
//	})
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
//
// /ready answers 503 with status "not_ready" when any check fails or
// outlives its timeout; the failing check's error is included.
package health
