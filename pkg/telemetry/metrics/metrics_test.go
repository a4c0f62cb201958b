package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/keys"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	enabled := true
	return &config.MetricsConfig{
		Enabled:               &enabled,
		Namespace:             "test",
		StreamDurationBuckets: []float64{0.1, 1, 10},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
	if !collector.Enabled() {
		t.Error("Expected collector to be enabled")
	}
}

func TestCollector_DefaultsAndPrivateRegistry(t *testing.T) {
	cfg := &config.MetricsConfig{}
	collector := NewCollector(cfg, nil)

	if collector.Registry() == nil {
		t.Fatal("Expected a registry to be created")
	}
	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("Expected default namespace, got %q", cfg.Namespace)
	}

	// Two collectors must not collide.
	_ = NewCollector(&config.MetricsConfig{}, nil)
}

func TestCollector_NilAndDisabled(t *testing.T) {
	var nilCollector *Collector
	nilCollector.RecordAuth("ok")
	nilCollector.StreamStarted()
	nilCollector.StreamFinished("m", "completed", 1, time.Second)
	nilCollector.RecordRequest("/", "GET", 200, time.Millisecond)
	nilCollector.RecordAdmissionRejected()
	nilCollector.RecordUpstreamError("timeout")
	nilCollector.RecordUpstreamLatency("m", time.Millisecond)
	nilCollector.RegisterKeyStats(nil)
	if nilCollector.Enabled() {
		t.Error("nil collector should report disabled")
	}

	disabled := false
	cfg := testConfig()
	cfg.Enabled = &disabled
	collector := NewCollector(cfg, nil)
	collector.RecordAuth("ok")

	if got := testutil.ToFloat64(collector.authMetrics.attempts.WithLabelValues("ok")); got != 0 {
		t.Errorf("Expected disabled collector to record nothing, got %v", got)
	}
}

func TestCollector_RecordAuth(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordAuth("ok")
	collector.RecordAuth("ok")
	collector.RecordAuth("invalid")

	if got := testutil.ToFloat64(collector.authMetrics.attempts.WithLabelValues("ok")); got != 2 {
		t.Errorf("Expected 2 ok attempts, got %v", got)
	}
	if got := testutil.ToFloat64(collector.authMetrics.attempts.WithLabelValues("invalid")); got != 1 {
		t.Errorf("Expected 1 invalid attempt, got %v", got)
	}
}

func TestCollector_Streams(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.StreamStarted()
	collector.StreamStarted()
	if got := testutil.ToFloat64(collector.streamMetrics.active); got != 2 {
		t.Errorf("Expected 2 active streams, got %v", got)
	}

	collector.StreamFinished("gemini-1.5-pro", "completed", 3, 200*time.Millisecond)
	collector.StreamFinished("gemini-1.5-pro", "client_disconnected", 1, time.Second)

	if got := testutil.ToFloat64(collector.streamMetrics.active); got != 0 {
		t.Errorf("Expected 0 active streams, got %v", got)
	}
	if got := testutil.ToFloat64(collector.streamMetrics.unitsTotal.WithLabelValues("gemini-1.5-pro")); got != 4 {
		t.Errorf("Expected 4 units, got %v", got)
	}
	if got := testutil.ToFloat64(collector.streamMetrics.streamsTotal.WithLabelValues("gemini-1.5-pro", "completed")); got != 1 {
		t.Errorf("Expected 1 completed stream, got %v", got)
	}
}

func TestCollector_ModelCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.cardinalityLimiter = NewCardinalityLimiter(2)

	if got := collector.modelLabel(""); got != "unknown" {
		t.Errorf("Expected unknown for empty model, got %q", got)
	}
	collector.modelLabel("a")
	collector.modelLabel("b")
	if got := collector.modelLabel("c"); got != "other" {
		t.Errorf("Expected overflow model to collapse to other, got %q", got)
	}
	if got := collector.modelLabel("a"); got != "a" {
		t.Errorf("Expected known model to keep its label, got %q", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(3)

	for i := 0; i < 3; i++ {
		if !cl.Allow(fmt.Sprintf("label-%d", i)) {
			t.Errorf("Expected label-%d to be allowed", i)
		}
	}
	if cl.Allow("label-3") {
		t.Error("Expected fourth label to be rejected")
	}
	if !cl.Allow("label-0") {
		t.Error("Expected existing label to be allowed")
	}
	if cl.Count() != 3 {
		t.Errorf("Expected count 3, got %d", cl.Count())
	}
}

type fixedStats keys.Stats

func (f fixedStats) Stats() keys.Stats { return keys.Stats(f) }

func TestCollector_KeyStatsAndHandler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RegisterKeyStats(fixedStats{Total: 3, Active: 2, Inactive: 1, TotalUsage: 42, RecentUsage: 1})
	// Second registration is ignored rather than panicking.
	collector.RegisterKeyStats(fixedStats{})

	collector.RecordRequest("/v1/chat/completions", http.MethodPost, http.StatusOK, 50*time.Millisecond)
	collector.RecordAdmissionRejected()
	collector.RecordUpstreamError("empty_response")
	collector.RecordUpstreamLatency("m", 100*time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`test_api_keys{state="active"} 2`,
		`test_api_keys{state="inactive"} 1`,
		`test_api_key_usage_total 42`,
		`test_http_requests_total{code="200",method="POST",route="/v1/chat/completions"} 1`,
		`test_admission_rejected_total 1`,
		`test_upstream_errors_total{kind="empty_response"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}
