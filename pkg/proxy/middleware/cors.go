package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"mercator-hq/relay/pkg/config"
)

// CORSMiddleware answers browser cross-origin checks.
//
// A listed origin, or any origin when "*" is listed, is echoed back in
// Access-Control-Allow-Origin. Echoing rather than sending "*" keeps
// credentialed requests working. Preflight OPTIONS requests are answered
// with 204 directly and never reach next, so they need no API key. A "*"
// in the method or header list echoes what the preflight asked for.
func CORSMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	wildcardOrigin := slices.Contains(cfg.AllowedOrigins, "*")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")

			switch {
			case origin != "" && (wildcardOrigin || slices.Contains(cfg.AllowedOrigins, origin)):
				h.Set("Access-Control-Allow-Origin", origin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposed != "" {
					h.Set("Access-Control-Expose-Headers", exposed)
				}
			case wildcardOrigin:
				h.Set("Access-Control-Allow-Origin", "*")
			}
			if origin != "" {
				h.Add("Vary", "Origin")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if v := allowList(cfg.AllowedMethods, r.Header.Get("Access-Control-Request-Method")); v != "" {
				h.Set("Access-Control-Allow-Methods", v)
			}
			if v := allowList(cfg.AllowedHeaders, r.Header.Get("Access-Control-Request-Headers")); v != "" {
				h.Set("Access-Control-Allow-Headers", v)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// allowList renders an allow header, replacing a wildcard entry with the
// requested value when there is one.
func allowList(allowed []string, requested string) string {
	if requested != "" && slices.Contains(allowed, "*") {
		return requested
	}
	return strings.Join(allowed, ", ")
}
