package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/catalog"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/query"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/recorder"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/source"
)

// TracerName is the instrumentation scope for reload spans.
const TracerName = "policycard/auditor"

var (
	// ErrClosed is returned by operations on a closed service.
	ErrClosed = errors.New("auditor closed")

	// ErrNoArchive is returned by Query when no evidence archive is configured.
	ErrNoArchive = errors.New("no evidence archive configured")

	// ErrNotWatchable is returned by Watch when the source cannot signal changes.
	ErrNotWatchable = errors.New("policy source does not support watching")
)

// Observer receives recorder, report and policy events (metrics).
type Observer interface {
	recorder.Observer
	report.Observer
	ObservePolicyReload(success bool)
	SetActivePolicy(name, version string)
}

// PeriodClosedFunc receives the final report of a closed audit period.
type PeriodClosedFunc func(ctx context.Context, r *evidence.Report)

// Service evaluates capabilities against the active policy card.
type Service struct {
	source         source.Source
	storage        evidence.Storage
	recorderConfig recorder.Config
	engine         *engine.Engine
	observer       Observer
	onPeriodClosed PeriodClosedFunc
	clock          func() time.Time
	logger         *slog.Logger
	tracer         trace.Tracer

	mu         sync.RWMutex
	doc        *card.Document
	provenance *card.Provenance
	recorder   *recorder.Recorder
	generator  *report.Generator
	closed     bool
}

// Option configures a Service.
type Option func(*Service)

// WithStorage archives evidence to store. The caller keeps ownership and
// closes it after the service.
func WithStorage(store evidence.Storage) Option {
	return func(s *Service) { s.storage = store }
}

// WithRecorderConfig sets the recorder configuration used for every period.
func WithRecorderConfig(cfg recorder.Config) Option {
	return func(s *Service) { s.recorderConfig = cfg }
}

// WithEngine sets the evaluation engine shared by every period.
func WithEngine(eng *engine.Engine) Option {
	return func(s *Service) { s.engine = eng }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithPeriodClosed registers a hook for the final report of each period.
func WithPeriodClosed(fn PeriodClosedFunc) Option {
	return func(s *Service) { s.onPeriodClosed = fn }
}

// WithClock sets the time source for evidence timestamps and reports.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New loads the initial document from src and opens the first audit period.
func New(ctx context.Context, src source.Source, opts ...Option) (*Service, error) {
	if src == nil {
		return nil, errors.New("policy source is nil")
	}

	s := &Service{
		source:         src,
		recorderConfig: *recorder.DefaultConfig(),
		clock:          time.Now,
		logger:         slog.Default(),
		tracer:         otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auditor")
	if s.engine == nil {
		s.engine = engine.NewEngine(s.logger)
	}

	doc, prov, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading policy from %s: %w", src, err)
	}
	if err := s.open(doc, prov); err != nil {
		return nil, err
	}

	s.logger.Info("auditor started",
		"source", src.String(),
		"policy", doc.Name,
		"version", doc.Version,
		"audit_id", s.recorder.AuditID(),
	)
	return s, nil
}

// open starts a new audit period for doc. Callers hold mu or own s exclusively.
func (s *Service) open(doc *card.Document, prov *card.Provenance) error {
	cfg := s.recorderConfig
	recOpts := []recorder.Option{
		recorder.WithEngine(s.engine),
		recorder.WithClock(s.clock),
		recorder.WithLogger(s.logger),
	}
	if s.observer != nil {
		recOpts = append(recOpts, recorder.WithObserver(s.observer))
	}
	rec, err := recorder.NewRecorder(doc, s.storage, &cfg, recOpts...)
	if err != nil {
		return err
	}

	genOpts := []report.Option{
		report.WithProvenance(prov),
		report.WithClock(s.clock),
		report.WithLogger(s.logger),
	}
	if s.observer != nil {
		genOpts = append(genOpts, report.WithObserver(s.observer))
	}
	gen, err := report.NewGenerator(rec, genOpts...)
	if err != nil {
		rec.Close()
		return err
	}

	s.doc = doc
	s.provenance = prov
	s.recorder = rec
	s.generator = gen
	if s.observer != nil {
		s.observer.SetActivePolicy(doc.Name, doc.Version)
	}
	return nil
}

// Document returns the active policy card.
func (s *Service) Document() *card.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Provenance returns where the active policy card came from.
func (s *Service) Provenance() *card.Provenance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provenance
}

// AuditID returns the id of the current audit period.
func (s *Service) AuditID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder.AuditID()
}

// Evaluate evaluates and records one capability. vars may be nil, in which
// case no escalation triggers are evaluated.
func (s *Service) Evaluate(ctx context.Context, capability string, metadata, vars map[string]any) (*engine.Result, *evidence.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, ErrClosed
	}
	if vars == nil {
		return s.recorder.EvaluateAndRecord(ctx, capability, metadata)
	}
	return s.recorder.EvaluateAndRecordWithContext(ctx, capability, metadata, vars)
}

// EvaluateCatalog evaluates every catalog entry in order and returns the
// recorded evidence. It stops at the first error.
func (s *Service) EvaluateCatalog(ctx context.Context, c *catalog.Catalog) ([]*evidence.Evidence, error) {
	out := make([]*evidence.Evidence, 0, len(c.Capabilities))
	for _, entry := range c.Capabilities {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		_, e, err := s.Evaluate(ctx, entry.Name, entry.Metadata, entry.Context)
		if err != nil {
			return out, fmt.Errorf("evaluating %q: %w", entry.Name, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Report generates a report over the current period.
func (s *Service) Report(ctx context.Context) (*evidence.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generator.Generate(ctx)
}

// ReportWindow generates a report over the current period labelled with an
// explicit window.
func (s *Service) ReportWindow(ctx context.Context, start, end time.Time) (*evidence.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generator.GenerateWindow(ctx, start, end)
}

// Reload loads the source again. It returns the final report of the closed
// period, or nil when the document is unchanged. An invalid document is
// rejected with the load error and the active document stays in force.
func (s *Service) Reload(ctx context.Context) (*evidence.Report, error) {
	ctx, span := s.tracer.Start(ctx, "policycard.reload",
		trace.WithAttributes(attribute.String("policy.source", s.source.String())))
	defer span.End()

	doc, prov, err := s.source.Load(ctx)
	if err != nil {
		s.observeReload(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy rejected")
		s.logger.Warn("policy reload rejected, keeping active policy",
			"source", s.source.String(),
			"active_policy", s.Document().Name,
			"error", err,
		)
		return nil, fmt.Errorf("reloading policy from %s: %w", s.source, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.provenance != nil && prov != nil && s.provenance.Digest == prov.Digest {
		s.mu.Unlock()
		s.logger.Debug("policy unchanged, period stays open", "digest", prov.Digest)
		return nil, nil
	}

	final, err := s.closePeriod(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	oldAuditID := final.AuditID
	if err := s.open(doc, prov); err != nil {
		s.closed = true
		s.mu.Unlock()
		return final, fmt.Errorf("opening audit period: %w", err)
	}
	newAuditID := s.recorder.AuditID()
	s.mu.Unlock()

	s.observeReload(true)
	span.SetAttributes(
		attribute.String("audit.closed_id", oldAuditID),
		attribute.String("audit.id", newAuditID),
	)
	s.logger.Info("policy reloaded, audit period closed",
		"policy", doc.Name,
		"version", doc.Version,
		"closed_audit_id", oldAuditID,
		"closed_entries", final.Summary.Total,
		"audit_id", newAuditID,
	)

	s.emit(ctx, final)
	return final, nil
}

// closePeriod closes the current recorder and generates its final report.
// Callers hold mu.
func (s *Service) closePeriod(ctx context.Context) (*evidence.Report, error) {
	if err := s.recorder.Close(); err != nil {
		return nil, err
	}
	final, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating final report: %w", err)
	}
	return final, nil
}

// Watch reloads whenever the source signals a change. It blocks until ctx is
// cancelled.
func (s *Service) Watch(ctx context.Context) error {
	w, ok := s.source.(source.Watcher)
	if !ok {
		return ErrNotWatchable
	}
	return w.Watch(ctx, func() {
		if _, err := s.Reload(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("policy reload failed", "error", err)
		}
	})
}

// Query returns archived evidence matching q and the total match count
// ignoring pagination.
func (s *Service) Query(ctx context.Context, q *evidence.Query) ([]*evidence.Evidence, int64, error) {
	if s.storage == nil {
		return nil, 0, ErrNoArchive
	}
	if q == nil {
		q = &evidence.Query{}
	}
	query.ApplyDefaults(q)
	if err := query.Validate(q); err != nil {
		return nil, 0, err
	}

	records, err := s.storage.Query(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.storage.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Close ends the current period and returns its final report. Archive writes
// are drained before the report is generated.
func (s *Service) Close(ctx context.Context) (*evidence.Report, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.closed = true
	final, err := s.closePeriod(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("auditor closed", "audit_id", final.AuditID, "entries", final.Summary.Total)
	s.emit(ctx, final)
	return final, nil
}

func (s *Service) emit(ctx context.Context, r *evidence.Report) {
	if s.onPeriodClosed != nil {
		s.onPeriodClosed(ctx, r)
	}
}

func (s *Service) observeReload(success bool) {
	if s.observer != nil {
		s.observer.ObservePolicyReload(success)
	}
}
