package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/proxy/types"
)

const testKeys = `admin_key:sk-admin:registry admin
alice:sk-alice:regular client
bob:sk-bob:retired [inactive]
`

func newTestRegistry(t *testing.T) *keys.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_keys.txt")
	if err := os.WriteFile(path, []byte(testKeys), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	reg := keys.NewRegistry(keys.NewFileStore(path))
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return reg
}

// echoIdentity answers 200 with the name of the attached identity.
func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(id.Name()))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestGate_Handle(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		header     string
		config     GateConfig
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{
			name:       "valid bearer key",
			path:       "/v1/chat/completions",
			header:     "Bearer sk-alice",
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "surrounding whitespace is trimmed",
			path:       "/v1/chat/completions",
			header:     "  Bearer   sk-alice  ",
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "wrong scheme",
			path:       "/v1/chat/completions",
			header:     "Token sk-alice",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeMissingAPIKey,
		},
		{
			name:       "scheme is case sensitive",
			path:       "/v1/chat/completions",
			header:     "bearer sk-alice",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeMissingAPIKey,
		},
		{
			name:       "no header",
			path:       "/v1/chat/completions",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeMissingAPIKey,
		},
		{
			name:       "unknown key",
			path:       "/v1/chat/completions",
			header:     "Bearer sk-nobody",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeInvalidAPIKey,
		},
		{
			name:       "inactive key",
			path:       "/v1/chat/completions",
			header:     "Bearer sk-bob",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeInvalidAPIKey,
		},
		{
			name:       "secret without prefix",
			path:       "/v1/chat/completions",
			header:     "Bearer    x",
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeInvalidAPIKey,
		},
		{
			name:       "bypass path without header",
			path:       "/health",
			config:     GateConfig{BypassPaths: []string{"/", "/health"}},
			wantStatus: http.StatusOK,
			wantBody:   "anonymous",
		},
		{
			name:       "bypass is exact match",
			path:       "/health/deep",
			config:     GateConfig{BypassPaths: []string{"/", "/health"}},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeMissingAPIKey,
		},
		{
			name:       "disabled auth admits without header",
			path:       "/v1/chat/completions",
			config:     GateConfig{Disabled: true},
			wantStatus: http.StatusOK,
			wantBody:   DisabledName,
		},
		{
			name:       "break-glass secret outside the registry",
			path:       "/admin/api-keys",
			header:     "Bearer sk-emergency",
			config:     GateConfig{AdminSecret: "sk-emergency"},
			wantStatus: http.StatusOK,
			wantBody:   BreakGlassName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(newTestRegistry(t), tt.config)

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			gate.Handle(echoIdentity()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
			if tt.wantCode != "" {
				resp := decodeError(t, rec)
				if resp.Error.Code != tt.wantCode {
					t.Errorf("expected error code %q, got %q", tt.wantCode, resp.Error.Code)
				}
				if resp.Error.Type != types.ErrorTypeAuthentication {
					t.Errorf("expected authentication error type, got %q", resp.Error.Type)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("expected WWW-Authenticate header on 401")
				}
			}
		})
	}
}

func TestGate_ValidationSideEffects(t *testing.T) {
	reg := newTestRegistry(t)
	gate := NewGate(reg, GateConfig{})
	handler := gate.Handle(echoIdentity())

	send := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	send("Bearer sk-alice")
	send("Bearer sk-alice")
	send("Bearer sk-bob")

	alice, _ := reg.Get("sk-alice")
	if alice.UsageCount != 2 {
		t.Errorf("expected alice usage 2, got %d", alice.UsageCount)
	}
	if alice.LastUsed.IsZero() {
		t.Error("expected alice last_used to be set")
	}

	bob, _ := reg.Get("sk-bob")
	if bob.UsageCount != 0 || !bob.LastUsed.IsZero() {
		t.Errorf("expected rejected key to be untouched, got %+v", bob)
	}
}

func TestGate_DisabledSkipsRegistry(t *testing.T) {
	reg := newTestRegistry(t)
	gate := NewGate(reg, GateConfig{Disabled: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer sk-alice")
	id, err := gate.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !id.Disabled || id.Secret != DisabledSecret || id.Record != nil {
		t.Errorf("expected disabled sentinel identity, got %+v", id)
	}

	alice, _ := reg.Get("sk-alice")
	if alice.UsageCount != 0 {
		t.Error("expected no registry lookup when auth is disabled")
	}
}

func TestGate_AttachesRecordSnapshot(t *testing.T) {
	gate := NewGate(newTestRegistry(t), GateConfig{AdminSecret: "sk-admin"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sk-admin")
	id, err := gate.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if id.Record == nil || id.Record.Name != "admin_key" {
		t.Fatalf("expected admin record snapshot, got %+v", id.Record)
	}
	if !id.BreakGlass {
		t.Error("expected break-glass flag when the secret matches the admin secret")
	}
	if id.Record.UsageCount != 1 {
		t.Errorf("expected snapshot to include this validation, got usage %d", id.Record.UsageCount)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer sk-abc", "sk-abc", true},
		{" Bearer sk-abc ", "sk-abc", true},
		{"Bearer  sk-abc", "sk-abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"BEARER sk-abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ExtractBearer(tt.header)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractBearer(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSecretsEqual(t *testing.T) {
	if SecretsEqual("", "") {
		t.Error("empty configured secret must never match")
	}
	if !SecretsEqual("sk-x", "sk-x") {
		t.Error("expected equal secrets to match")
	}
	if SecretsEqual("sk-x", "sk-y") || SecretsEqual("sk-x", "sk-xx") {
		t.Error("expected different secrets not to match")
	}
}
