package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goclaw/recall/config"
)

// alwaysExposed are response headers browser clients of the search API
// need regardless of configuration: the request id quoted in error
// bodies and the back-off hint on 429s.
var alwaysExposed = []string{RequestIDHeader, "Retry-After"}

// CORS applies cfg to cross-origin requests. Disallowed origins get no
// CORS headers, and their preflights are answered with 403.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	exposed := strings.Join(mergeHeaders(cfg.ExposedHeaders, alwaysExposed), ", ")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	wildcard := containsOrigin(cfg.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !wildcard && !containsOrigin(cfg.AllowedOrigins, origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			// Credentials cannot be combined with a literal "*".
			if wildcard && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Expose-Headers", exposed)

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func containsOrigin(allowed []string, origin string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// mergeHeaders appends extra to configured, skipping case-insensitive
// duplicates.
func mergeHeaders(configured, extra []string) []string {
	out := make([]string, 0, len(configured)+len(extra))
	seen := map[string]bool{}
	for _, h := range append(append([]string(nil), configured...), extra...) {
		key := http.CanonicalHeaderKey(strings.TrimSpace(h))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}
