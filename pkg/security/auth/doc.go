/*
Package auth authenticates inbound requests against the API key registry and
authorizes administrative operations.

# Gate

Gate is HTTP middleware. For every path outside the bypass list it reads the
Authorization header, which must use the Bearer scheme, and validates the
secret with the registry. Admitted requests carry an *Identity in their
context:

	gate := auth.NewGate(registry, auth.GateConfig{
		AdminSecret: os.Getenv("ADMIN_API_KEY"),
		BypassPaths: []string{"/", "/health"},
	})
	mux.Handle("/v1/", gate.Handle(api))

	// in a handler
	id, _ := auth.IdentityFromContext(r.Context())
	slog.InfoContext(r.Context(), "request", "key_name", id.Name())

Rejections are answered in the OpenAI error envelope with status 401:
missing_api_key when the header is absent or uses another scheme, and
invalid_api_key when the secret is unknown or inactive.

When authentication is disabled every request is admitted with a sentinel
identity and the registry is never consulted.

# Authorizer

Authorizer decides administrative privilege from an Identity. A caller is
an administrator when its live registry record carries the reserved admin
name and is active, or when it presented the configured break-glass secret.
The break-glass secret does not need to exist in the registry. A disabled-auth
identity is never an administrator.

	admin := auth.NewAuthorizer(registry, auth.AuthorizerConfig{
		AdminName:   "admin_key",
		AdminSecret: os.Getenv("ADMIN_API_KEY"),
	})
	mux.Handle("/admin/", gate.Handle(admin.RequireAdmin(adminRoutes)))
*/
package auth
