package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	route  string
	method string
	status int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeRecorder) RecordRequest(route, method string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{route, method, status})
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		status     int
		wantRoute  string
		wantStatus int
	}{
		{"implicit ok", "/health", 0, "/health", http.StatusOK},
		{"explicit status", "/v1/chat/completions", http.StatusBadRequest, "/v1/chat/completions", http.StatusBadRequest},
		{"admin status route", "/admin/api-keys/alice/status", http.StatusNotFound, "/admin/api-keys/{name}/status", http.StatusNotFound},
		{"unknown path", "/wp-login.php", http.StatusNotFound, "other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if GetStartTime(r.Context()).IsZero() {
					t.Error("start time should be set in context")
				}
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("ok"))
			})

			w := httptest.NewRecorder()
			LoggingMiddleware(rec)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			if len(rec.requests) != 1 {
				t.Fatalf("expected one recorded request, got %d", len(rec.requests))
			}
			got := rec.requests[0]
			if got.route != tt.wantRoute || got.status != tt.wantStatus || got.method != http.MethodPost {
				t.Errorf("recorded %+v, want route %q status %d", got, tt.wantRoute, tt.wantStatus)
			}
		})
	}
}

func TestLoggingMiddleware_NilRecorder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	LoggingMiddleware(nil)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("Status code = %v, want %v", w.Code, http.StatusTeapot)
	}
}

func TestLoggingMiddleware_Flush(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: x\n\n"))
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("flush through wrapper failed: %v", err)
		}
	})

	w := httptest.NewRecorder()
	LoggingMiddleware(nil)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if !w.Flushed {
		t.Error("expected the underlying writer to be flushed")
	}
}

func TestLoggingMiddleware_RecordsAbortedRequest(t *testing.T) {
	rec := &fakeRecorder{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic(http.ErrAbortHandler)
	})

	func() {
		defer func() { _ = recover() }()
		LoggingMiddleware(rec)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))
	}()

	if len(rec.requests) != 1 {
		t.Fatalf("expected the aborted request to be recorded, got %d", len(rec.requests))
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("writes 504 when handler gives up", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})

		w := httptest.NewRecorder()
		TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/api-keys", nil))

		if w.Code != http.StatusGatewayTimeout {
			t.Errorf("Status code = %v, want %v", w.Code, http.StatusGatewayTimeout)
		}
	})

	t.Run("keeps handler response", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); !ok {
				t.Error("expected a deadline on the request context")
			}
			w.WriteHeader(http.StatusCreated)
		})

		w := httptest.NewRecorder()
		TimeoutMiddleware(time.Second)(handler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/api-keys", nil))

		if w.Code != http.StatusCreated {
			t.Errorf("Status code = %v, want %v", w.Code, http.StatusCreated)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				t.Error("expected no deadline")
			}
		})
		TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	})
}

func TestKeepAliveMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	KeepAliveMiddleware(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("Connection"); got != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", got)
	}
}
