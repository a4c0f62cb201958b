package auth

import (
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

// AuthorizerConfig configures an Authorizer.
type AuthorizerConfig struct {
	// AdminName is the reserved record name that carries the admin role.
	AdminName string

	// AdminSecret is the break-glass secret.
	AdminSecret string

	// Metrics, when set, counts forbidden requests.
	Metrics *metrics.Collector
}

// Authorizer grants administrative privilege.
type Authorizer struct {
	registry *keys.Registry
	config   AuthorizerConfig
}

// NewAuthorizer creates an authorizer that consults registry for the live
// state of admin records.
func NewAuthorizer(registry *keys.Registry, cfg AuthorizerConfig) *Authorizer {
	return &Authorizer{registry: registry, config: cfg}
}

// Roles returns the claims held by id right now.
func (a *Authorizer) Roles(id *Identity) []Role {
	if a.IsAdmin(id) {
		return []Role{RoleAdmin}
	}
	return nil
}

// IsAdmin reports whether id may perform administrative operations.
func (a *Authorizer) IsAdmin(id *Identity) bool {
	if id == nil || id.Disabled || id.Secret == "" {
		return false
	}

	if SecretsEqual(id.Secret, a.config.AdminSecret) {
		return true
	}

	if a.config.AdminName == "" {
		return false
	}
	rec, ok := a.registry.Get(id.Secret)
	return ok && rec.Active && rec.Name == a.config.AdminName
}

// RequireAdmin wraps next so only administrators reach it. Others get 403.
func (a *Authorizer) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if !a.IsAdmin(id) {
			a.config.Metrics.RecordAuth("forbidden")
			slog.WarnContext(r.Context(), "admin access denied",
				"key_name", id.Name(),
				"path", r.URL.Path,
			)
			_ = proxy.WriteErrorResponse(w, types.NewPermissionDeniedError(
				"Admin access required",
				types.CodeAdminRequired,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}
