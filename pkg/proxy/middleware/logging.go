package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseWriter records the status sent through it and whether anything
// has been committed to the client. Flush and Unwrap keep SSE streaming
// working through the wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.statusCode, rw.written = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	rw.WriteHeader(http.StatusOK)
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestRecorder receives one observation per completed request.
// *metrics.Collector satisfies it.
type RequestRecorder interface {
	RecordRequest(route, method string, status int, duration time.Duration)
}

// LoggingMiddleware writes one "request completed" line per request and
// reports it to rec, which may be nil. The level follows the status: error
// for 5xx, warn for 4xx, info otherwise. The line is written from a defer so
// aborted streams are logged before the panic reaches net/http.
func LoggingMiddleware(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := context.WithValue(r.Context(), StartTimeKey, start)
			rw := newResponseWriter(w)

			slog.DebugContext(ctx, "request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			defer func() {
				elapsed := time.Since(start)
				slog.Log(ctx, levelForStatus(rw.statusCode), "request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rw.statusCode,
					"latency_ms", elapsed.Milliseconds(),
					"remote_addr", r.RemoteAddr,
				)
				if rec != nil {
					rec.RecordRequest(RouteLabel(r.URL.Path), r.Method, rw.statusCode, elapsed)
				}
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// knownRoutes are the paths reported as-is in metrics.
var knownRoutes = map[string]bool{
	"/":                      true,
	"/health":                true,
	"/ready":                 true,
	"/version":               true,
	"/metrics":               true,
	"/v1/models":             true,
	"/v1/chat/completions":   true,
	"/admin/api-keys":        true,
	"/admin/api-keys/reload": true,
}

// RouteLabel maps a request path to a bounded metrics label.
func RouteLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/admin/api-keys/") && strings.HasSuffix(path, "/status") {
		return "/admin/api-keys/{name}/status"
	}
	return "other"
}

// GetStartTime returns when LoggingMiddleware first saw the request, or the
// zero time outside it.
func GetStartTime(ctx context.Context) time.Time {
	start, _ := ctx.Value(StartTimeKey).(time.Time)
	return start
}
