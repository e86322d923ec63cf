package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
)

var (
	corsMethods        = "GET, POST, OPTIONS"
	corsDefaultHeaders = []string{"Content-Type", RequestIDHeader, "traceparent"}
	corsExposedHeaders = RequestIDHeader + ", X-Trace-ID"
)

// CORS adds Cross-Origin Resource Sharing headers for allowed origins and
// answers preflight requests with 204. With no allowed origins it is a
// pass-through.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = corsDefaultHeaders
	}
	allowHeaders := strings.Join(headers, ", ")
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		if len(cfg.AllowedOrigins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (wildcard || slices.Contains(cfg.AllowedOrigins, origin))

			if allowed {
				if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", corsMethods)
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
					if cfg.MaxAge > 0 {
						w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
