package evidence

import (
	"context"
	"io"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
)

// Evidence is an immutable record of one evaluation.
type Evidence struct {
	// Identity
	Sequence uint64 `json:"sequence" yaml:"sequence"` // 1-based, per audit period
	ID       string `json:"id" yaml:"id"`             // UUID v4
	AuditID  string `json:"audit_id" yaml:"audit_id"` // Audit period the entry belongs to

	// Subject
	Capability string    `json:"capability" yaml:"capability"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`

	// Outcome
	Result              engine.Result `json:"result" yaml:"result"`
	MetadataFingerprint string        `json:"metadata_fingerprint" yaml:"metadata_fingerprint"` // sha256:<hex>

	// Escalation
	Context     map[string]any        `json:"context,omitempty" yaml:"context,omitempty"`
	Escalations []engine.FiredTrigger `json:"escalations,omitempty" yaml:"escalations,omitempty"`
}

// Escalated reports whether at least one trigger fired for this entry.
func (e *Evidence) Escalated() bool {
	return len(e.Escalations) > 0
}

// Clone returns a deep copy of the entry.
func (e *Evidence) Clone() *Evidence {
	c := *e
	c.Result = *e.Result.Clone()
	if e.Context != nil {
		c.Context = card.Normalize(e.Context).(map[string]any)
	}
	if e.Escalations != nil {
		c.Escalations = append([]engine.FiredTrigger(nil), e.Escalations...)
	}
	return &c
}

// Summary holds aggregate counts over a report's evidence.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Compliant int `json:"compliant" yaml:"compliant"`
	Rejected  int `json:"rejected" yaml:"rejected"`
	Warned    int `json:"warned" yaml:"warned"`
	Escalated int `json:"escalated" yaml:"escalated"`
}

// KPIStatus is the health band of a KPI metric.
type KPIStatus string

const (
	KPIStatusPass     KPIStatus = "pass"
	KPIStatusWarn     KPIStatus = "warn"
	KPIStatusFail     KPIStatus = "fail"
	KPIStatusCritical KPIStatus = "critical"
)

// KPIResult is the classification of one KPI threshold.
type KPIResult struct {
	Metric   string    `json:"metric" yaml:"metric"`
	Value    float64   `json:"value" yaml:"value"`
	Target   float64   `json:"target" yaml:"target"`
	Critical *float64  `json:"critical_threshold,omitempty" yaml:"critical_threshold,omitempty"`
	Status   KPIStatus `json:"status" yaml:"status"`
	Note     string    `json:"note,omitempty" yaml:"note,omitempty"`
}

// DetectorResult is the outcome of one monitoring detector.
type DetectorResult struct {
	Name      string  `json:"name" yaml:"name"`
	Value     float64 `json:"value" yaml:"value"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Fired     bool    `json:"fired" yaml:"fired"`
	Action    string  `json:"action,omitempty" yaml:"action,omitempty"`
	Note      string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// Report is an audit report over a snapshot of the evidence log.
type Report struct {
	AuditID       string           `json:"audit_id" yaml:"audit_id"`
	PolicyName    string           `json:"policy_name" yaml:"policy_name"`
	PolicyVersion string           `json:"policy_version" yaml:"policy_version"`
	Provenance    *card.Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`

	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	PeriodStart time.Time `json:"period_start" yaml:"period_start"`
	PeriodEnd   time.Time `json:"period_end" yaml:"period_end"`

	Summary           Summary               `json:"summary" yaml:"summary"`
	KPIs              []KPIResult           `json:"kpis" yaml:"kpis"`
	Detectors         []DetectorResult      `json:"detectors,omitempty" yaml:"detectors,omitempty"`
	AssuranceCoverage card.AssuranceMapping `json:"assurance_coverage" yaml:"assurance_coverage"`

	Evidence     []Evidence `json:"evidence" yaml:"evidence"`
	EvidenceHash string     `json:"evidence_hash" yaml:"evidence_hash"`
}

// Query defines filter parameters for querying archived evidence.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	AuditID    string `json:"audit_id,omitempty"`
	Capability string `json:"capability,omitempty"`
	RuleID     string `json:"rule_id,omitempty"` // Matches violations and warnings
	Compliant  *bool  `json:"compliant,omitempty"`
	Escalated  *bool  `json:"escalated,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "sequence", "timestamp", "capability"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for evidence archive backends.
// Implementations must be thread-safe. Archives are append-only: there is no
// delete operation.
type Storage interface {
	// Store persists an evidence entry. Storing the same (audit id, sequence)
	// twice is an error.
	Store(ctx context.Context, e *Evidence) error

	// Query retrieves entries matching the query filters.
	// Returns an empty slice if no entries match.
	Query(ctx context.Context, query *Query) ([]*Evidence, error)

	// Count returns the number of entries matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter writes a report to w in the exporter's format.
type Exporter interface {
	Export(ctx context.Context, report *Report, w io.Writer) error
}

// RecordExporter writes a list of evidence entries to w.
type RecordExporter interface {
	ExportRecords(ctx context.Context, records []*Evidence, w io.Writer) error
}
