package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

// ErrorBody is the JSON error written by middleware that answers a request
// itself.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail matches the error shape used by the API handlers.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery converts handler panics into a 500 JSON response. The panic value
// and stack are logged, not returned.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.FromContext(r.Context(), logger).Error("panic in handler",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{
					Code:      "internal_error",
					Message:   "an internal error occurred",
					RequestID: logging.GetRequestID(r.Context()),
				}})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
