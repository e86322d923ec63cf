package evidence

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrRecorderClosed is returned when recording on a closed recorder.
	ErrRecorderClosed = errors.New("recorder closed")

	// ErrDuplicateEvidence is returned when an archive already holds an entry
	// with the same audit id and sequence number.
	ErrDuplicateEvidence = errors.New("duplicate evidence entry")

	// ErrChainMismatch is returned when a recomputed evidence hash differs
	// from the recorded one.
	ErrChainMismatch = errors.New("evidence hash chain mismatch")
)

// EvidenceError wraps failures that have no more specific type, such as
// canonical serialization.
type EvidenceError struct {
	Message string
	Cause   error
}

func (e *EvidenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *EvidenceError) Unwrap() error {
	return e.Cause
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("store", "query", "count")
	Cause     error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an error during query execution or validation.
type QueryError struct {
	Query *Query // Query that failed
	Cause error  // Underlying error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RecorderError represents an error during evidence recording.
type RecorderError struct {
	RecordID string // Evidence ID
	Cause    error  // Underlying error
}

func (e *RecorderError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("recorder error [record_id=%s]: %v", e.RecordID, e.Cause)
	}
	return fmt.Sprintf("recorder error: %v", e.Cause)
}

func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(recordID string, cause error) *RecorderError {
	return &RecorderError{
		RecordID: recordID,
		Cause:    cause,
	}
}

// ReportError represents an error while generating or verifying a report.
type ReportError struct {
	AuditID string // Audit period identifier
	Cause   error  // Underlying error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report error [audit_id=%s]: %v", e.AuditID, e.Cause)
}

func (e *ReportError) Unwrap() error {
	return e.Cause
}

// NewReportError creates a new ReportError.
func NewReportError(auditID string, cause error) *ReportError {
	return &ReportError{
		AuditID: auditID,
		Cause:   cause,
	}
}

// ExportError represents an error during evidence export.
type ExportError struct {
	Format      string // Export format ("json", "yaml", "csv")
	RecordCount int    // Number of records being exported
	Cause       error  // Underlying error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}
