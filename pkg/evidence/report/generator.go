package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// TracerName is the instrumentation scope used for report spans.
const TracerName = "policycard/report"

// Log is a read-only view of an evidence log. *recorder.Recorder
// implements it.
type Log interface {
	AuditID() string
	OpenedAt() time.Time
	Document() *card.Document
	Snapshot() []evidence.Evidence
}

// Observer receives every generated report (metrics).
type Observer interface {
	ObserveReport(report *evidence.Report, duration time.Duration)
}

// Generator builds reports from a Log.
type Generator struct {
	log        Log
	provenance *card.Provenance
	clock      func() time.Time
	tracer     trace.Tracer
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithProvenance attaches document provenance to every report.
func WithProvenance(p *card.Provenance) Option {
	return func(g *Generator) {
		g.provenance = p
	}
}

// WithClock sets the time source for GeneratedAt.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		g.clock = clock
	}
}

// WithTracer sets the tracer used for report spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Generator) {
		g.tracer = tracer
	}
}

// WithObserver registers an observer notified after each report.
func WithObserver(o Observer) Option {
	return func(g *Generator) {
		g.observer = o
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a report generator over log.
func NewGenerator(log Log, opts ...Option) (*Generator, error) {
	if log == nil || log.Document() == nil {
		return nil, evidence.NewReportError("", errors.New("evidence log has no policy document"))
	}

	g := &Generator{
		log:    log,
		clock:  time.Now,
		tracer: otel.Tracer(TracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "evidence.report")
	return g, nil
}

// Generate builds a report over the current log. The period brackets the
// first and last entry. An empty log covers the span from the log's opening
// to the generation instant.
func (g *Generator) Generate(ctx context.Context) (*evidence.Report, error) {
	return g.generate(ctx, nil, nil)
}

// GenerateWindow builds a report labelled with an explicit period. The
// window only labels the report; every entry in the log is included.
func (g *Generator) GenerateWindow(ctx context.Context, start, end time.Time) (*evidence.Report, error) {
	if end.Before(start) {
		return nil, evidence.NewReportError(g.log.AuditID(), errors.New("period end before period start"))
	}
	return g.generate(ctx, &start, &end)
}

func (g *Generator) generate(ctx context.Context, start, end *time.Time) (*evidence.Report, error) {
	doc := g.log.Document()
	auditID := g.log.AuditID()

	_, span := g.tracer.Start(ctx, "policycard.report",
		trace.WithAttributes(
			attribute.String("policy.name", doc.Name),
			attribute.String("audit.id", auditID),
		),
	)
	defer span.End()

	began := time.Now()

	// One snapshot feeds the summary and the hash chain.
	entries := g.log.Snapshot()
	generatedAt := g.clock().UTC()

	r := &evidence.Report{
		AuditID:           auditID,
		PolicyName:        doc.Name,
		PolicyVersion:     doc.Version,
		Provenance:        g.provenance,
		GeneratedAt:       generatedAt,
		Summary:           Summarize(entries),
		KPIs:              make([]evidence.KPIResult, 0, len(doc.KPIs)),
		AssuranceCoverage: coverage(doc.Assurance),
		Evidence:          entries,
	}

	switch {
	case start != nil:
		r.PeriodStart, r.PeriodEnd = start.UTC(), end.UTC()
	case len(entries) > 0:
		r.PeriodStart = entries[0].Timestamp
		r.PeriodEnd = entries[len(entries)-1].Timestamp
	default:
		r.PeriodStart, r.PeriodEnd = g.log.OpenedAt().UTC(), generatedAt
	}

	for _, t := range doc.KPIs {
		r.KPIs = append(r.KPIs, ClassifyKPI(t, r.Summary))
	}
	for _, d := range doc.Detectors {
		r.Detectors = append(r.Detectors, EvaluateDetector(d, r.Summary))
	}

	hash, err := EvidenceHash(doc.Name, auditID, entries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evidence hash failed")
		g.logger.Error("report generation failed", "audit_id", auditID, "error", err)
		return nil, err
	}
	r.EvidenceHash = hash

	duration := time.Since(began)
	span.SetAttributes(
		attribute.Int("report.total", r.Summary.Total),
		attribute.String("report.evidence_hash", hash),
	)

	for _, k := range r.KPIs {
		if k.Status == evidence.KPIStatusCritical || k.Status == evidence.KPIStatusFail {
			g.logger.Warn("KPI below target",
				"audit_id", auditID,
				"metric", k.Metric,
				"value", k.Value,
				"target", k.Target,
				"status", k.Status,
			)
		}
	}
	for _, d := range r.Detectors {
		if d.Fired {
			g.logger.Warn("monitoring detector fired",
				"audit_id", auditID,
				"detector", d.Name,
				"value", d.Value,
				"threshold", d.Threshold,
				"action", d.Action,
			)
		}
	}

	g.logger.Info("audit report generated",
		"policy", doc.Name,
		"audit_id", auditID,
		"total", r.Summary.Total,
		"compliant", r.Summary.Compliant,
		"rejected", r.Summary.Rejected,
		"evidence_hash", hash,
		"duration_ms", duration.Milliseconds(),
	)

	if g.observer != nil {
		g.observer.ObserveReport(r, duration)
	}
	return r, nil
}

// Summarize counts entries by outcome.
func Summarize(entries []evidence.Evidence) evidence.Summary {
	s := evidence.Summary{Total: len(entries)}
	for i := range entries {
		e := &entries[i]
		if e.Result.Compliant {
			s.Compliant++
		}
		if len(e.Result.Warnings) > 0 {
			s.Warned++
		}
		if e.Escalated() {
			s.Escalated++
		}
	}
	s.Rejected = s.Total - s.Compliant
	return s
}

// coverage copies the mapping, dropping frameworks without controls.
func coverage(m card.AssuranceMapping) card.AssuranceMapping {
	out := card.AssuranceMapping{}
	for framework, controls := range m {
		if len(controls) == 0 {
			continue
		}
		out[framework] = append([]string(nil), controls...)
	}
	return out
}
