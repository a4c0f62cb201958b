package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/keys"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

const testKeys = `admin_key:sk-admin:registry admin
alice:sk-alice:regular client
`

const breakGlass = "sk-break-glass"

// stubProvider answers completions immediately and holds streams open
// until their context ends.
type stubProvider struct {
	healthy bool

	mu          sync.Mutex
	streamCause error
	streamOpen  chan struct{}
	once        sync.Once
}

func newStubProvider() *stubProvider {
	return &stubProvider{healthy: true, streamOpen: make(chan struct{})}
}

func (p *stubProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	return &providers.CompletionResponse{ID: "up-1", Content: "pong", FinishReason: "stop"}, nil
}

func (p *stubProvider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	ch := make(chan *providers.StreamChunk)
	p.once.Do(func() { close(p.streamOpen) })
	go func() {
		defer close(ch)
		<-ctx.Done()
		p.mu.Lock()
		p.streamCause = context.Cause(ctx)
		p.mu.Unlock()
	}()
	return ch, nil
}

func (p *stubProvider) HealthCheck(ctx context.Context) error { return nil }
func (p *stubProvider) GetName() string                       { return "stub" }
func (p *stubProvider) IsHealthy() bool                       { return p.healthy }
func (p *stubProvider) Close() error                          { return nil }

func (p *stubProvider) GetHealth() providers.ProviderHealth {
	if p.healthy {
		return providers.ProviderHealth{IsHealthy: true}
	}
	return providers.ProviderHealth{LastError: errors.New("connection refused")}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "api_keys.txt")
	if err := os.WriteFile(keyFile, []byte(testKeys), 0o600); err != nil {
		t.Fatal(err)
	}

	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Proxy.ListenAddress = "127.0.0.1:0"
	cfg.Upstream.ModelsFile = filepath.Join(dir, "models.json")
	cfg.Keys.File = keyFile
	disabled := false
	cfg.Keys.Refresh.Enabled = &disabled
	cfg.Security.Authentication.AdminKey = breakGlass
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config, p providers.Provider) *Server {
	t.Helper()

	reg := keys.NewRegistry(keys.NewFileStore(cfg.Keys.File))
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	srv, err := New(cfg, Dependencies{
		Registry: reg,
		Provider: p,
		Metrics:  metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Build:    BuildInfo{Version: "1.2.3", Commit: "abc123"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func do(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RequiresDependencies(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New(cfg, Dependencies{Provider: newStubProvider()}); err == nil {
		t.Error("expected an error without a registry")
	}
	reg := keys.NewRegistry(keys.NewFileStore(cfg.Keys.File))
	if _, err := New(cfg, Dependencies{Registry: reg}); err == nil {
		t.Error("expected an error without a provider")
	}
}

func TestServer_Routes(t *testing.T) {
	h := newTestServer(t, testConfig(t), newStubProvider()).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		key        string
		wantStatus int
	}{
		{"info is public", http.MethodGet, "/", "", http.StatusOK},
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"ready is public", http.MethodGet, "/ready", "", http.StatusOK},
		{"version is public", http.MethodGet, "/version", "", http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", "", http.StatusOK},
		{"models needs a key", http.MethodGet, "/v1/models", "", http.StatusUnauthorized},
		{"models with key", http.MethodGet, "/v1/models", "sk-alice", http.StatusOK},
		{"unknown key", http.MethodGet, "/v1/models", "sk-nobody", http.StatusUnauthorized},
		{"admin needs admin", http.MethodGet, "/admin/api-keys", "sk-alice", http.StatusForbidden},
		{"admin by reserved name", http.MethodGet, "/admin/api-keys", "sk-admin", http.StatusOK},
		{"admin by break-glass", http.MethodGet, "/admin/api-keys", breakGlass, http.StatusOK},
		{"unknown route", http.MethodGet, "/v2/anything", "sk-alice", http.StatusNotFound},
		{"unknown route needs a key", http.MethodGet, "/v2/anything", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, tt.method, tt.path, tt.key, "")
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d: %s", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("expected X-Request-ID on every response")
			}
		})
	}
}

func TestServer_InfoAndHealth(t *testing.T) {
	h := newTestServer(t, testConfig(t), newStubProvider()).Handler()

	var info handlers.ServiceInfo
	if err := json.Unmarshal(do(h, http.MethodGet, "/", "", "").Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.3" || len(info.Endpoints) == 0 {
		t.Errorf("unexpected info: %+v", info)
	}

	var status struct {
		Status        string `json:"status"`
		Timestamp     int64  `json:"timestamp"`
		APIKeysLoaded int    `json:"api_keys_loaded"`
	}
	if err := json.Unmarshal(do(h, http.MethodGet, "/health", "", "").Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "healthy" || status.APIKeysLoaded != 2 || status.Timestamp == 0 {
		t.Errorf("unexpected health: %+v", status)
	}
}

func TestServer_ReadyReflectsUpstream(t *testing.T) {
	p := newStubProvider()
	p.healthy = false
	h := newTestServer(t, testConfig(t), p).Handler()

	w := do(h, http.MethodGet, "/ready", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("expected the upstream error in the body, got %s", w.Body.String())
	}
}

func TestServer_ChatCompletion(t *testing.T) {
	h := newTestServer(t, testConfig(t), newStubProvider()).Handler()

	w := do(h, http.MethodPost, "/v1/chat/completions", "sk-alice", `{"messages":[{"role":"user","content":"ping"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "chatcmpl-up-1" || resp.Model != config.DefaultModel {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got := w.Header().Get("Connection"); got != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", got)
	}
}

func TestServer_AuthDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.Authentication.Disabled = true
	h := newTestServer(t, cfg, newStubProvider()).Handler()

	if w := do(h, http.MethodGet, "/v1/models", "", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/admin/api-keys", "", ""); w.Code != http.StatusForbidden {
		t.Errorf("disabled auth must not grant admin, got %d", w.Code)
	}
}

func TestServer_CORSPreflightNeedsNoKey(t *testing.T) {
	h := newTestServer(t, testConfig(t), newStubProvider()).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServer_AdminCreateThenUse(t *testing.T) {
	h := newTestServer(t, testConfig(t), newStubProvider()).Handler()

	w := do(h, http.MethodPost, "/admin/api-keys", "sk-admin", `{"name":"carol"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created handlers.CreateKeyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	if w := do(h, http.MethodGet, "/v1/models", created.APIKey, ""); w.Code != http.StatusOK {
		t.Errorf("new key: expected 200, got %d", w.Code)
	}

	if w := do(h, http.MethodPut, "/admin/api-keys/carol/status", "sk-admin", `{"is_active":false}`); w.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/v1/models", created.APIKey, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated key: expected 401, got %d", w.Code)
	}
}

func TestServer_ShutdownCancelsStreams(t *testing.T) {
	cfg := testConfig(t)
	cfg.Proxy.ShutdownTimeout = 50 * time.Millisecond
	p := newStubProvider()
	srv := newTestServer(t, cfg, p)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/v1/chat/completions",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"stream":true}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer sk-alice")

	clientDone := make(chan string, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			clientDone <- ""
			return
		}
		defer resp.Body.Close()
		var sb strings.Builder
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			sb.WriteString(sc.Text())
		}
		clientDone <- sb.String()
	}()

	select {
	case <-p.streamOpen:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never reached the upstream")
	}
	if !srv.IsRunning() {
		t.Error("expected the server to report running")
	}

	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}

	select {
	case body := <-clientDone:
		if strings.Contains(body, "[DONE]") {
			t.Errorf("aborted stream must not end cleanly, got %q", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client was not released")
	}

	deadline := time.Now().Add(time.Second)
	for {
		p.mu.Lock()
		cause := p.streamCause
		p.mu.Unlock()
		if cause != nil {
			if !errors.Is(cause, proxy.ErrServerShutdown) {
				t.Errorf("stream cause = %v, want %v", cause, proxy.ErrServerShutdown)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("upstream context was never cancelled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if srv.IsRunning() {
		t.Error("expected the server to be stopped")
	}
}
