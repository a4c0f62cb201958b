package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a generic 500 in the OpenAI
// error envelope. The panic value and stack are logged, never returned.
//
// If the handler had already committed a response, typically an SSE stream,
// no error body can be appended, so the connection is aborted instead.
// http.ErrAbortHandler is re-panicked untouched: handlers raise it on
// purpose to cut a stream off without a terminal event.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"response_committed", rw.written,
				"stack", string(debug.Stack()),
			)

			if rw.written {
				panic(http.ErrAbortHandler)
			}
			_ = proxy.WriteErrorResponse(rw, types.NewServerError(
				"An internal error occurred. Please try again later.",
			))
		}()

		next.ServeHTTP(rw, r)
	})
}
