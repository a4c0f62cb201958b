package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

// BearerPrefix is the required Authorization scheme prefix, including its
// single separating space.
const BearerPrefix = "Bearer "

var (
	// ErrMissingCredential is returned when no Bearer credential was sent.
	ErrMissingCredential = errors.New("missing or malformed authorization header")

	// ErrInvalidCredential is returned when the secret is unknown or inactive.
	ErrInvalidCredential = errors.New("invalid or inactive api key")
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Disabled admits every request with the disabled-auth identity.
	Disabled bool

	// AdminSecret is the break-glass secret. Requests presenting it are
	// admitted even when it is not in the registry.
	AdminSecret string

	// BypassPaths are served without authentication (exact match).
	BypassPaths []string
}

// Gate is HTTP middleware for API key authentication.
type Gate struct {
	registry *keys.Registry
	config   GateConfig
	bypass   map[string]struct{}
	metrics  *metrics.Collector
}

// GateOption configures optional Gate collaborators.
type GateOption func(*Gate)

// WithGateMetrics records authentication outcomes on c.
func WithGateMetrics(c *metrics.Collector) GateOption {
	return func(g *Gate) {
		g.metrics = c
	}
}

// NewGate creates an authentication gate backed by registry.
func NewGate(registry *keys.Registry, cfg GateConfig, opts ...GateOption) *Gate {
	g := &Gate{
		registry: registry,
		config:   cfg,
		bypass:   make(map[string]struct{}, len(cfg.BypassPaths)),
	}
	for _, p := range cfg.BypassPaths {
		g.bypass[p] = struct{}{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle wraps an HTTP handler with API key authentication.
func (g *Gate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.bypass[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		id, err := g.Authenticate(r)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		ctx := WithIdentity(r.Context(), id)
		ctx = logging.WithKeyName(ctx, id.Name())

		slog.DebugContext(ctx, "api key authenticated",
			"path", r.URL.Path,
			"break_glass", id.BreakGlass,
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate resolves the caller of r. It returns ErrMissingCredential or
// ErrInvalidCredential on rejection.
func (g *Gate) Authenticate(r *http.Request) (*Identity, error) {
	if g.config.Disabled {
		g.metrics.RecordAuth("disabled")
		return disabledIdentity(), nil
	}

	secret, ok := ExtractBearer(r.Header.Get("Authorization"))
	if !ok {
		g.metrics.RecordAuth("missing")
		return nil, ErrMissingCredential
	}

	breakGlass := g.isBreakGlass(secret)

	if g.registry.Validate(secret) {
		id := &Identity{Secret: secret, BreakGlass: breakGlass}
		if rec, found := g.registry.Get(secret); found {
			id.Record = &rec
		}
		g.metrics.RecordAuth("ok")
		return id, nil
	}

	if breakGlass {
		g.metrics.RecordAuth("break_glass")
		return &Identity{Secret: secret, BreakGlass: true}, nil
	}

	g.metrics.RecordAuth("invalid")
	return nil, ErrInvalidCredential
}

func (g *Gate) isBreakGlass(secret string) bool {
	return SecretsEqual(secret, g.config.AdminSecret)
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	code := types.CodeInvalidAPIKey
	message := "Invalid API key"
	if errors.Is(err, ErrMissingCredential) {
		code = types.CodeMissingAPIKey
		message = "Missing API key. Provide it as 'Authorization: Bearer <key>'"
	}

	slog.WarnContext(r.Context(), "request rejected",
		"reason", code,
		"remote_addr", r.RemoteAddr,
		"path", r.URL.Path,
	)

	w.Header().Set("WWW-Authenticate", `Bearer realm="relay"`)
	_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError(message, code))
}

// ExtractBearer returns the trimmed secret from an Authorization header
// value. The value, after trimming, must start with the exact prefix
// "Bearer ".
func ExtractBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(BearerPrefix):]), true
}

// SecretsEqual compares a presented secret with a configured one in
// constant time. An empty configured secret never matches.
func SecretsEqual(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
