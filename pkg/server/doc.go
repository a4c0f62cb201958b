// Package server provides the relay's HTTP server.
//
// The server ties the key registry, the authentication gate, the handlers
// and the middleware chain together and owns their lifecycle: the
// background key refresher, the upstream health checker and graceful
// shutdown.
//
// # Basic Usage
//
//	srv, err := server.New(cfg, server.Dependencies{
//	    Registry: registry,
//	    Provider: upstream,
//	    Metrics:  collector,
//	    Build:    server.BuildInfo{Version: "1.0.0"},
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is cancelled and shutdown completes
//
// # Routes
//
//	GET  /                               service info         public
//	GET  /health                         liveness             public
//	GET  /ready                          readiness            public
//	GET  /version                        build info           public
//	GET  /metrics                        Prometheus           public, if enabled
//	GET  /v1/models                      model list           API key
//	POST /v1/chat/completions            chat completions     API key
//	GET  /admin/api-keys                 list keys            admin
//	POST /admin/api-keys                 create key           admin
//	PUT  /admin/api-keys/{name}/status   activate/deactivate  admin
//	POST /admin/api-keys/reload          reload from store    admin
//
// The public set is security.authentication.bypass_paths plus the probe
// and metrics paths.
//
// # Graceful Shutdown
//
// Shutdown stops the listener and waits up to proxy.shutdown_timeout for
// in-flight requests. Every request context descends from a server base
// context; when the wait runs out that context is cancelled with
// proxy.ErrServerShutdown, so running streams end as cancelled and their
// connections are aborted rather than closed cleanly.
package server
