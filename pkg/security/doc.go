/*
Package security groups the relay's access control.

The auth subpackage holds the gate that admits requests carrying a known,
active API key and the authorizer that decides which identities may call
the admin routes:

	gate := auth.NewGate(registry, auth.GateConfig{
		AdminSecret: cfg.Security.Authentication.AdminKey,
		BypassPaths: []string{"/", "/health"},
	})
	authorizer := auth.NewAuthorizer(registry, auth.AuthorizerConfig{
		AdminName:   "admin_key",
		AdminSecret: cfg.Security.Authentication.AdminKey,
	})

	handler := gate.Handle(mux)
	mux.Handle("GET /admin/api-keys", authorizer.RequireAdmin(listKeys))

Credentials themselves live in the keys package.
*/
package security
