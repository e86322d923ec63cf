package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/auditor"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/export"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

// Auditor is the service the API exposes. *auditor.Service implements it.
type Auditor interface {
	Document() *card.Document
	Provenance() *card.Provenance
	AuditID() string
	Evaluate(ctx context.Context, capability string, metadata, vars map[string]any) (*engine.Result, *evidence.Evidence, error)
	Report(ctx context.Context) (*evidence.Report, error)
	ReportWindow(ctx context.Context, start, end time.Time) (*evidence.Report, error)
	Reload(ctx context.Context) (*evidence.Report, error)
	Query(ctx context.Context, q *evidence.Query) ([]*evidence.Evidence, int64, error)
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllow, "method "+r.Method+" not allowed")
	return false
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req EvaluateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return
		}
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Capability == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "capability is required")
		return
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}

	ctx := logging.WithCapability(r.Context(), req.Capability)
	result, e, err := s.auditor.Evaluate(ctx, req.Capability, req.Metadata, req.Context)
	if err != nil {
		s.serviceError(w, r.WithContext(ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Compliant: result.Compliant,
		Result:    result,
		Evidence:  e,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	params := r.URL.Query()

	exporter, contentType, err := reportExporter(params.Get("format"), s.pretty)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	start, err := parseTime(params, "start")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	end, err := parseTime(params, "end")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	var rep *evidence.Report
	switch {
	case start == nil && end == nil:
		rep, err = s.auditor.Report(r.Context())
	case start != nil && end != nil:
		if start.After(*end) {
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "start must not be after end")
			return
		}
		rep, err = s.auditor.ReportWindow(r.Context(), *start, *end)
	default:
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "start and end must be given together")
		return
	}
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if err := exporter.Export(r.Context(), rep, w); err != nil {
		s.logger(r).Error("writing report failed", "error", err)
	}
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{
		AuditID:    s.auditor.AuditID(),
		Policy:     s.auditor.Document(),
		Provenance: s.auditor.Provenance(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	closed, err := s.auditor.Reload(r.Context())
	if err != nil {
		if details := loadErrorDetails(err); details != nil {
			writeErrorDetail(w, http.StatusUnprocessableEntity, ErrorDetail{
				Code:      CodePolicyRejected,
				Message:   err.Error(),
				RequestID: logging.GetRequestID(r.Context()),
				Details:   details,
			})
			return
		}
		s.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ReloadResponse{
		Reloaded: closed != nil,
		AuditID:  s.auditor.AuditID(),
		Closed:   closed,
	})
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	params := r.URL.Query()

	format := params.Get("format")
	var exporter evidence.RecordExporter
	contentType := "application/json"
	switch format {
	case "", "json":
	case "yaml":
		exporter, contentType = export.NewYAMLExporter(), "application/yaml"
	case "csv":
		exporter, contentType = export.NewCSVExporter(true), "text/csv"
	default:
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	q, err := parseQuery(params)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = s.defaultLimit
	}
	if s.maxLimit > 0 && q.Limit > s.maxLimit {
		writeError(w, r, http.StatusBadRequest, CodeInvalidQuery,
			fmt.Sprintf("limit must be <= %d, got %d", s.maxLimit, q.Limit))
		return
	}

	records, total, err := s.auditor.Query(r.Context(), q)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	if exporter == nil {
		writeJSON(w, http.StatusOK, EvidenceResponse{
			Records: records,
			Total:   total,
			Limit:   q.Limit,
			Offset:  q.Offset,
		})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	w.WriteHeader(http.StatusOK)
	if err := exporter.ExportRecords(r.Context(), records, w); err != nil {
		s.logger(r).Error("writing evidence failed", "error", err)
	}
}

// serviceError maps auditor errors to HTTP responses.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var queryErr *evidence.QueryError
	switch {
	case errors.As(err, &queryErr):
		writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, err.Error())
	case errors.Is(err, auditor.ErrNoArchive):
		writeError(w, r, http.StatusNotImplemented, CodeNoArchive, err.Error())
	case errors.Is(err, auditor.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "request cancelled")
	default:
		s.logger(r).Error("request failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "an internal error occurred")
	}
}

func reportExporter(format string, pretty bool) (evidence.Exporter, string, error) {
	switch format {
	case "", "json":
		return export.NewJSONExporter(pretty), "application/json", nil
	case "yaml":
		return export.NewYAMLExporter(), "application/yaml", nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func parseTime(params url.Values, key string) (*time.Time, error) {
	v := params.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", key, err)
	}
	return &t, nil
}

func parseBool(params url.Values, key string) (*bool, error) {
	v := params.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", key)
	}
	return &b, nil
}

func parseInt(params url.Values, key string) (int, error) {
	v := params.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// parseQuery builds an archive query from URL parameters. Range and sort
// validation happens in the auditor.
func parseQuery(params url.Values) (*evidence.Query, error) {
	q := &evidence.Query{
		AuditID:    params.Get("audit_id"),
		Capability: params.Get("capability"),
		RuleID:     params.Get("rule_id"),
		SortBy:     params.Get("sort_by"),
		SortOrder:  params.Get("sort_order"),
	}

	var err error
	if q.StartTime, err = parseTime(params, "start"); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTime(params, "end"); err != nil {
		return nil, err
	}
	if q.Compliant, err = parseBool(params, "compliant"); err != nil {
		return nil, err
	}
	if q.Escalated, err = parseBool(params, "escalated"); err != nil {
		return nil, err
	}
	if q.Limit, err = parseInt(params, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = parseInt(params, "offset"); err != nil {
		return nil, err
	}
	return q, nil
}
