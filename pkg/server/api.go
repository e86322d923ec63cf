package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Capability string         `json:"capability"`
	Metadata   map[string]any `json:"metadata"`

	// Context holds runtime variables for escalation triggers. Omit it to
	// skip trigger evaluation.
	Context map[string]any `json:"context,omitempty"`
}

// EvaluateResponse is the body returned by POST /v1/evaluate.
type EvaluateResponse struct {
	Compliant bool               `json:"compliant"`
	Result    *engine.Result     `json:"result"`
	Evidence  *evidence.Evidence `json:"evidence"`
}

// PolicyResponse is the body returned by GET /v1/policy.
type PolicyResponse struct {
	AuditID    string           `json:"audit_id"`
	Policy     *card.Document   `json:"policy"`
	Provenance *card.Provenance `json:"provenance,omitempty"`
}

// ReloadResponse is the body returned by POST /v1/policy/reload.
type ReloadResponse struct {
	Reloaded bool   `json:"reloaded"`
	AuditID  string `json:"audit_id"`

	// Closed is the final report of the period the reload closed.
	Closed *evidence.Report `json:"closed,omitempty"`
}

// EvidenceResponse is the JSON body returned by GET /v1/evidence.
type EvidenceResponse struct {
	Records []*evidence.Evidence `json:"records"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// ErrorResponse wraps every error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id,omitempty"`
	Details   []ErrorReason `json:"details,omitempty"`
}

// ErrorReason is one policy load failure.
type ErrorReason struct {
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidQuery    = "invalid_query"
	CodePayloadTooLarge = "payload_too_large"
	CodeMethodNotAllow  = "method_not_allowed"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodePolicyRejected  = "policy_rejected"
	CodeNoArchive       = "no_archive"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal_error"
)

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetail(w, status, ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: logging.GetRequestID(r.Context()),
	})
}

func writeErrorDetail(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorResponse{Error: detail})
}

// loadErrorDetails flattens a card.ErrorList found anywhere in err's chain.
func loadErrorDetails(err error) []ErrorReason {
	var el *card.ErrorList
	if !errors.As(err, &el) {
		return nil
	}
	out := make([]ErrorReason, 0, len(el.Errors))
	for _, e := range el.Errors {
		out = append(out, ErrorReason{
			Type:       string(e.Type),
			Path:       e.Path,
			Message:    e.Message,
			Suggestion: e.Suggestion,
		})
	}
	return out
}
