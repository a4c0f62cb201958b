package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
)

// TimeoutMiddleware bounds the request context to timeout. The handler runs
// on the calling goroutine and is expected to return once its context ends;
// if it returns without having written anything after the deadline passed,
// a 504 Gateway Timeout error is written on its behalf.
//
// It is meant for short administrative requests. Chat streams are bounded
// by the server write timeout instead.
//
// Example usage:
//
//	handler = TimeoutMiddleware(30 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			if !rw.written && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				_ = proxy.WriteErrorResponse(w, types.NewGatewayTimeoutError(
					"Request timeout: the request took too long to complete",
				))
			}
		})
	}
}
