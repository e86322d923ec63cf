package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
)

// Config contains configuration for the evidence recorder.
type Config struct {
	// Archive enables asynchronous persistence to the storage backend.
	// Default: true (ignored when no storage is supplied)
	Archive bool

	// AsyncBuffer is the size of the async archive channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds enqueueing and writing one entry to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// RecordContext stores the escalation context on each evidence entry.
	// Default: true
	RecordContext bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Archive:       true,
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		RecordContext: true,
	}
}

// Observer receives recorder events (metrics).
type Observer interface {
	ObserveRecorded(e *evidence.Evidence)
	ObserveArchived(duration time.Duration, err error)
	ObserveArchiveDropped()
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEngine sets the evaluation engine. Defaults to an engine using the
// recorder's logger.
func WithEngine(eng *engine.Engine) Option {
	return func(r *Recorder) {
		r.engine = eng
	}
}

// WithAuditID fixes the audit period identifier instead of generating one.
func WithAuditID(id string) Option {
	return func(r *Recorder) {
		r.auditID = id
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithObserver registers an observer for recorder events.
func WithObserver(o Observer) Option {
	return func(r *Recorder) {
		r.observer = o
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder evaluates capabilities against one policy document and records
// every evaluation in an append-only log for the lifetime of one audit period.
//
// Sequence assignment and append happen under a single mutex; evaluation and
// fingerprinting happen outside it. Archiving to storage is asynchronous and
// never affects the in-memory log.
type Recorder struct {
	doc      *card.Document
	engine   *engine.Engine
	storage  evidence.Storage
	config   *Config
	auditID  string
	clock    func() time.Time
	openedAt time.Time
	observer Observer
	logger   *slog.Logger

	mu      sync.Mutex
	log     []*evidence.Evidence
	nextSeq uint64
	closed  bool

	archiveChan chan *evidence.Evidence
	wg          sync.WaitGroup
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRecorder creates a recorder for doc. storage may be nil, in which case
// evidence lives only in memory.
func NewRecorder(doc *card.Document, storage evidence.Storage, config *Config, opts ...Option) (*Recorder, error) {
	if doc == nil {
		return nil, evidence.NewRecorderError("", errors.New("policy document is nil"))
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		doc:     doc,
		storage: storage,
		config:  config,
		clock:   time.Now,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "evidence.recorder")
	if r.engine == nil {
		r.engine = engine.NewEngine(r.logger)
	}
	if r.auditID == "" {
		r.auditID = uuid.New().String()
	}
	r.openedAt = r.clock().UTC()

	if r.archiving() {
		r.archiveChan = make(chan *evidence.Evidence, config.AsyncBuffer)
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("evidence recorder initialized",
		"policy", doc.Name,
		"audit_id", r.auditID,
		"archive", r.archiving(),
		"async_buffer", config.AsyncBuffer,
	)

	return r, nil
}

// AuditID returns the identifier of the audit period this recorder covers.
func (r *Recorder) AuditID() string {
	return r.auditID
}

// OpenedAt returns when the audit period began.
func (r *Recorder) OpenedAt() time.Time {
	return r.openedAt
}

// Document returns the policy document the recorder evaluates against.
func (r *Recorder) Document() *card.Document {
	return r.doc
}

// EvaluateAndRecord evaluates metadata for capability, appends the evidence
// to the log and returns both. No escalation context is evaluated.
func (r *Recorder) EvaluateAndRecord(ctx context.Context, capability string, metadata map[string]any) (*engine.Result, *evidence.Evidence, error) {
	return r.EvaluateAndRecordWithContext(ctx, capability, metadata, nil)
}

// EvaluateAndRecordWithContext is EvaluateAndRecord with a runtime context
// against which the policy's escalation triggers are evaluated.
func (r *Recorder) EvaluateAndRecordWithContext(ctx context.Context, capability string, metadata, vars map[string]any) (*engine.Result, *evidence.Evidence, error) {
	if r.isClosed() {
		return nil, nil, evidence.NewRecorderError("", evidence.ErrRecorderClosed)
	}

	result := r.engine.Evaluate(ctx, r.doc, metadata, capability)

	e := &evidence.Evidence{
		ID:                  uuid.New().String(),
		AuditID:             r.auditID,
		Capability:          capability,
		Result:              *result.Clone(),
		MetadataFingerprint: Fingerprint(metadata),
	}
	if vars != nil {
		e.Escalations = r.engine.Escalate(ctx, r.doc, vars)
		if r.config.RecordContext {
			e.Context = r.snapshotContext(vars)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, evidence.NewRecorderError(e.ID, evidence.ErrRecorderClosed)
	}
	r.nextSeq++
	e.Sequence = r.nextSeq
	e.Timestamp = r.clock().UTC()
	r.log = append(r.log, e)
	r.mu.Unlock()

	r.logger.Debug("evidence recorded",
		"audit_id", r.auditID,
		"sequence", e.Sequence,
		"capability", capability,
		"compliant", result.Compliant,
		"escalations", len(e.Escalations),
	)

	if r.observer != nil {
		r.observer.ObserveRecorded(e)
	}
	if r.archiving() {
		r.enqueue(e.Clone())
	}

	return result, e.Clone(), nil
}

// Snapshot returns a deep copy of the log in sequence order.
func (r *Recorder) Snapshot() []evidence.Evidence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]evidence.Evidence, len(r.log))
	for i, e := range r.log {
		out[i] = *e.Clone()
	}
	return out
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}

// Close stops accepting evaluations and drains pending archive writes.
// The in-memory log stays readable through Snapshot.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down evidence recorder", "audit_id", r.auditID)

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()

		r.logger.Info("evidence recorder shut down complete", "recorded", r.Len())
	})
	return nil
}

func (r *Recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) archiving() bool {
	return r.storage != nil && r.config.Archive
}

// snapshotContext copies vars so later caller mutation cannot alter the
// evidence. Contexts that cannot be serialized are not stored.
func (r *Recorder) snapshotContext(vars map[string]any) map[string]any {
	copied, _ := card.Normalize(vars).(map[string]any)
	if _, err := json.Marshal(copied); err != nil {
		r.logger.Warn("escalation context not serializable, omitted from evidence",
			"audit_id", r.auditID,
			"error", err,
		)
		return nil
	}
	return copied
}

func (r *Recorder) enqueue(e *evidence.Evidence) {
	select {
	case r.archiveChan <- e:
	case <-time.After(r.config.WriteTimeout):
		r.logger.Error("archive channel full, dropping evidence",
			"audit_id", e.AuditID,
			"sequence", e.Sequence,
			"channel_capacity", r.config.AsyncBuffer,
		)
		if r.observer != nil {
			r.observer.ObserveArchiveDropped()
		}
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping evidence",
			"audit_id", e.AuditID,
			"sequence", e.Sequence,
		)
		if r.observer != nil {
			r.observer.ObserveArchiveDropped()
		}
	}
}

// worker drains the archive channel and writes entries to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.archiveChan:
			r.write(e)

		case <-r.done:
			r.logger.Info("draining archive channel before shutdown",
				"pending_count", len(r.archiveChan),
			)

			for {
				select {
				case e := <-r.archiveChan:
					r.write(e)
				default:
					r.logger.Info("archive channel drained")
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *evidence.Evidence) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := r.storage.Store(ctx, e)
	duration := time.Since(start)

	if r.observer != nil {
		r.observer.ObserveArchived(duration, err)
	}

	if err != nil {
		r.logger.Error("failed to archive evidence",
			"audit_id", e.AuditID,
			"sequence", e.Sequence,
			"error", err,
		)
		return
	}

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"sequence", e.Sequence,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
