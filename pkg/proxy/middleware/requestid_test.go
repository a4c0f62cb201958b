package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/telemetry/logging"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantKeep bool
	}{
		{name: "absent", incoming: "", wantKeep: false},
		{name: "client id kept", incoming: "req-7f3a:retry=2", wantKeep: true},
		{name: "max length kept", incoming: strings.Repeat("a", maxRequestIDLength), wantKeep: true},
		{name: "oversized replaced", incoming: strings.Repeat("x", maxRequestIDLength+1), wantKeep: false},
		{name: "space replaced", incoming: "two words", wantKeep: false},
		{name: "non-ascii replaced", incoming: "zähler", wantKeep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
				if logging.GetRequestID(r.Context()) != seen {
					t.Error("request ID not visible to the logging context")
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			RequestIDMiddleware(next).ServeHTTP(rec, req)

			echoed := rec.Header().Get(RequestIDHeader)
			if echoed != seen {
				t.Errorf("header %q does not match context %q", echoed, seen)
			}
			if tt.wantKeep {
				if echoed != tt.incoming {
					t.Errorf("ID = %q, want client ID kept", echoed)
				}
				return
			}
			if _, err := uuid.Parse(echoed); err != nil {
				t.Errorf("ID = %q, want a generated UUID", echoed)
			}
		})
	}
}

func TestRequestIDMiddleware_Unique(t *testing.T) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(RequestIDHeader)
		if seen[id] {
			t.Fatalf("duplicate request ID %s", id)
		}
		seen[id] = true
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := GetRequestID(req.Context()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func BenchmarkRequestIDMiddleware(b *testing.B) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}
