package middleware

import "net/http"

// KeepAliveMiddleware advertises persistent connections on every response.
// Some OpenAI client libraries expect the header even on HTTP/1.1, where it
// is implied. net/http drops it on HTTP/2.
func KeepAliveMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 1 {
			w.Header().Set("Connection", "keep-alive")
		}
		next.ServeHTTP(w, r)
	})
}
