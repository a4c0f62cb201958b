package auth

import (
	"context"

	"mercator-hq/relay/pkg/keys"
)

const (
	// DisabledSecret is the sentinel secret attached when authentication is off.
	DisabledSecret = "disabled"

	// DisabledName is the sentinel key name attached when authentication is off.
	DisabledName = "auth_disabled"

	// BreakGlassName names an identity admitted only through the break-glass secret.
	BreakGlassName = "break_glass"
)

// Role is a privilege claim derived for an identity.
type Role string

// RoleAdmin grants access to key administration.
const RoleAdmin Role = "admin"

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	// Secret is the presented credential, or DisabledSecret.
	Secret string

	// Record is a snapshot of the registry record taken at admission.
	// Nil when authentication is disabled or the caller used a break-glass
	// secret that is not in the registry.
	Record *keys.Record

	// Disabled is set when authentication is turned off.
	Disabled bool

	// BreakGlass is set when Secret equals the configured admin secret.
	BreakGlass bool
}

// Name returns a loggable name for the caller. It never returns the secret.
func (id *Identity) Name() string {
	switch {
	case id == nil:
		return ""
	case id.Disabled:
		return DisabledName
	case id.Record != nil:
		return id.Record.Name
	case id.BreakGlass:
		return BreakGlassName
	default:
		return ""
	}
}

func disabledIdentity() *Identity {
	return &Identity{Secret: DisabledSecret, Disabled: true}
}

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const identityKey contextKey = "relay_identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity attached by the Gate.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}
