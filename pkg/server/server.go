package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/limits"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// BuildInfo identifies the running binary on / and /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Dependencies are the collaborators a Server is built from. Registry and
// Provider are required; the rest may be nil.
type Dependencies struct {
	Registry *keys.Registry
	Provider providers.Provider
	Metrics  *metrics.Collector
	Tracer   *tracing.Tracer
	Build    BuildInfo
}

// healthChecked is implemented by providers that probe their upstream in
// the background.
type healthChecked interface {
	StartHealthChecker(ctx context.Context)
}

// Server is the relay's HTTP server.
type Server struct {
	config   *config.Config
	registry *keys.Registry
	provider providers.Provider
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	build    BuildInfo

	health    *health.Checker
	gate      *limits.ConcurrencyGate
	refresher *keys.Refresher
	handler   http.Handler

	// baseCtx parents every request context. Cancelling it with
	// proxy.ErrServerShutdown ends in-flight streams.
	baseCtx    context.Context
	cancelBase context.CancelCauseFunc

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server for cfg. The configuration must already be validated.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("server: key registry is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("server: upstream provider is required")
	}

	baseCtx, cancel := context.WithCancelCause(context.Background())
	s := &Server{
		config:     cfg,
		registry:   deps.Registry,
		provider:   deps.Provider,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		build:      deps.Build,
		health:     health.New(0),
		gate:       limits.NewConcurrencyGate(cfg.Proxy.MaxConcurrentRequests, limits.WithRejectionRecorder(deps.Metrics)),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	s.metrics.RegisterKeyStats(s.registry)
	s.registerHealthChecks()
	s.handler = s.setupRoutes()

	if config.BoolValue(cfg.Keys.Refresh.Enabled, config.DefaultKeysRefreshEnabled) {
		rc := keys.RefresherConfig{Schedule: cfg.Keys.Refresh.Schedule}
		if fs, ok := s.registry.Store().(*keys.FileStore); ok && config.BoolValue(cfg.Keys.Refresh.Watch, config.DefaultKeysRefreshWatch) {
			rc.WatchPath = fs.Path()
		}
		s.refresher = keys.NewRefresher(s.registry, rc)
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx ends or the
// listener fails. Cancelling ctx triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return s.baseCtx },
	}
	s.mu.Unlock()

	if s.refresher != nil {
		if err := s.refresher.Start(ctx); err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to start key refresher: %w", err)
		}
	}
	if hc, ok := s.provider.(healthChecked); ok {
		hc.StartHealthChecker(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting relay server",
			"address", ln.Addr().String(),
			"upstream", s.provider.GetName(),
			"max_concurrent_requests", s.config.Proxy.MaxConcurrentRequests,
			"auth_disabled", s.config.Security.Authentication.Disabled,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Shutdown stops accepting connections and waits up to the configured
// shutdown timeout for in-flight requests. Requests still running after
// that are cancelled with proxy.ErrServerShutdown and their connections
// closed.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		slog.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		if s.refresher != nil {
			s.refresher.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown timed out, cancelling in-flight requests",
				"error", err,
				"in_flight", s.gate.InFlight(),
			)
			s.cancelBase(proxy.ErrServerShutdown)
			if err := s.httpServer.Close(); err != nil {
				shutdownErr = fmt.Errorf("server close error: %w", err)
			}
		}
		s.cancelBase(proxy.ErrServerShutdown)

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("relay server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// registerHealthChecks wires liveness and readiness to the registry, its
// store and the upstream.
func (s *Server) registerHealthChecks() {
	s.health.SetKeyCounter(s.registry.Len)

	s.health.RegisterCheck("key_store", func(ctx context.Context) error {
		_, err := s.registry.Store().ModTime(ctx)
		return err
	})
	s.health.RegisterCheck("upstream", func(ctx context.Context) error {
		if !s.provider.IsHealthy() {
			h := s.provider.GetHealth()
			if h.LastError != nil {
				return h.LastError
			}
			return fmt.Errorf("upstream %s is unhealthy", s.provider.GetName())
		}
		return nil
	})
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	chat := handlers.NewChatHandler(s.provider, s.config.Upstream.DefaultModel,
		handlers.WithGate(s.gate),
		handlers.WithMetrics(s.metrics),
		handlers.WithTracer(s.tracer),
	)
	models := handlers.NewModelsHandler(s.config.Upstream.ModelsFile)
	admin := handlers.NewAdminHandler(s.registry,
		config.BoolValue(s.config.Keys.PersistOnChange, config.DefaultKeysPersistOnChange))

	authCfg := s.config.Security.Authentication
	authorizer := auth.NewAuthorizer(s.registry, auth.AuthorizerConfig{
		AdminName:   authCfg.AdminName,
		AdminSecret: authCfg.AdminKey,
		Metrics:     s.metrics,
	})
	adminRoute := func(h http.HandlerFunc) http.Handler {
		return authorizer.RequireAdmin(middleware.TimeoutMiddleware(s.config.Proxy.AdminTimeout)(h))
	}

	// Public routes
	mux.Handle("GET /{$}", handlers.InfoHandler(s.build.Version, publicEndpoints))
	mux.Handle("GET /health", s.health.LivenessHandler())
	mux.Handle("GET /ready", s.health.ReadinessHandler())
	mux.Handle("GET /version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))

	bypass := append([]string(nil), authCfg.BypassPaths...)
	bypass = append(bypass, "/ready", "/version")
	if s.metrics.Enabled() {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.metrics.Handler())
		bypass = append(bypass, s.config.Telemetry.Metrics.Path)
	}

	// Authenticated routes
	mux.Handle("GET /v1/models", models)
	mux.Handle("/v1/chat/completions", chat)

	// Admin routes
	mux.Handle("GET /admin/api-keys", adminRoute(admin.List))
	mux.Handle("POST /admin/api-keys", adminRoute(admin.Create))
	mux.Handle("PUT /admin/api-keys/{name}/status", adminRoute(admin.SetStatus))
	mux.Handle("POST /admin/api-keys/reload", adminRoute(admin.Reload))

	mux.HandleFunc("/", notFound)

	gate := auth.NewGate(s.registry, auth.GateConfig{
		Disabled:    authCfg.Disabled,
		AdminSecret: authCfg.AdminKey,
		BypassPaths: bypass,
	}, auth.WithGateMetrics(s.metrics))

	// Apply middleware chain, innermost first
	var handler http.Handler = mux
	handler = gate.Handle(handler)
	handler = middleware.CORSMiddleware(s.config.Proxy.CORS)(handler)
	handler = middleware.KeepAliveMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.metrics)(handler)
	handler = tracing.HTTPMiddleware(s.tracer)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// publicEndpoints is the endpoint index served on /.
var publicEndpoints = []string{
	"/v1/chat/completions",
	"/v1/models",
	"/health",
	"/ready",
	"/version",
	"/admin/api-keys",
}

func notFound(w http.ResponseWriter, r *http.Request) {
	errResp := types.NewNotFoundError(fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path))
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
