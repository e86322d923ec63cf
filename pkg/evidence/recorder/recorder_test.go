package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/storage"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

func testPolicy(t *testing.T) *card.Document {
	t.Helper()
	doc, err := card.LoadBytes([]byte(`
policy_card_version: "1.0"
name: geo
scope: {}
rules:
  - id: geo-restriction
    effect: deny
    reason: processing outside the EU
    condition:
      field: locations
      operator: not_any_of
      values: [EU, EEA]
  - id: retention
    effect: warn
    reason: long retention
    condition:
      field: retention_days
      operator: greater_than
      value: 90
escalation:
  triggers:
    - condition: "risk_score > 0.8"
      action: human_review
`), "test.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	return doc
}

func fixedClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func TestRecorder_EvaluateAndRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec, err := NewRecorder(testPolicy(t), nil, nil, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	result, ev, err := rec.EvaluateAndRecord(ctx, "search", map[string]any{"locations": []any{"US"}})
	if err != nil {
		t.Fatalf("EvaluateAndRecord() error = %v", err)
	}
	if result.Compliant {
		t.Error("expected non-compliant result")
	}
	if ev.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", ev.Sequence)
	}
	if ev.AuditID != rec.AuditID() {
		t.Errorf("AuditID = %q, want %q", ev.AuditID, rec.AuditID())
	}
	if ev.Capability != "search" {
		t.Errorf("Capability = %q", ev.Capability)
	}
	if ev.MetadataFingerprint != Fingerprint(map[string]any{"locations": []any{"US"}}) {
		t.Errorf("MetadataFingerprint = %q", ev.MetadataFingerprint)
	}
	if len(ev.Result.Violations) != 1 || ev.Result.Violations[0].RuleID != "geo-restriction" {
		t.Errorf("Result = %+v", ev.Result)
	}
	if ev.Escalated() {
		t.Error("no context supplied, nothing should escalate")
	}

	_, ev2, err := rec.EvaluateAndRecord(ctx, "translate", map[string]any{"locations": []any{"EU"}})
	if err != nil {
		t.Fatalf("EvaluateAndRecord() error = %v", err)
	}
	if ev2.Sequence != 2 {
		t.Errorf("second Sequence = %d, want 2", ev2.Sequence)
	}
	if !ev2.Timestamp.After(ev.Timestamp) {
		t.Error("timestamps not increasing")
	}
	if rec.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rec.Len())
	}
}

func TestRecorder_EscalationContext(t *testing.T) {
	rec, err := NewRecorder(testPolicy(t), nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	vars := map[string]any{"risk_score": 0.95}
	_, ev, err := rec.EvaluateAndRecordWithContext(context.Background(), "pay", map[string]any{"locations": []any{"EU"}}, vars)
	if err != nil {
		t.Fatalf("EvaluateAndRecordWithContext() error = %v", err)
	}
	if !ev.Escalated() || ev.Escalations[0].Action != "human_review" {
		t.Errorf("Escalations = %+v", ev.Escalations)
	}
	if ev.Context["risk_score"] != 0.95 {
		t.Errorf("Context = %v", ev.Context)
	}

	// Mutating the caller's map must not alter recorded evidence.
	vars["risk_score"] = 0.1
	snap := rec.Snapshot()
	if snap[0].Context["risk_score"] != 0.95 {
		t.Error("recorded context changed after caller mutation")
	}
}

func TestRecorder_SnapshotIsImmutable(t *testing.T) {
	rec, err := NewRecorder(testPolicy(t), nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	_, returned, _ := rec.EvaluateAndRecord(context.Background(), "a", map[string]any{"locations": []any{"US"}})
	returned.Capability = "tampered"
	returned.Result.Violations[0].RuleID = "tampered"

	snap := rec.Snapshot()
	snap[0].Result.Compliant = true

	again := rec.Snapshot()
	if again[0].Capability != "a" {
		t.Errorf("Capability = %q, log was mutated through returned evidence", again[0].Capability)
	}
	if again[0].Result.Violations[0].RuleID != "geo-restriction" {
		t.Error("violations mutated through returned evidence")
	}
	if again[0].Result.Compliant {
		t.Error("log mutated through snapshot")
	}
}

func TestRecorder_ConcurrentSequences(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec, err := NewRecorder(testPolicy(t), nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, _, err := rec.EvaluateAndRecord(context.Background(), "tool", map[string]any{"locations": []any{"EU"}}); err != nil {
					t.Errorf("EvaluateAndRecord() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	snap := rec.Snapshot()
	if len(snap) != workers*perWorker {
		t.Fatalf("len(snapshot) = %d, want %d", len(snap), workers*perWorker)
	}
	for i, e := range snap {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("snapshot[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}
}

func TestRecorder_ArchivesToStorage(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.AsyncBuffer = 10

	rec, err := NewRecorder(testPolicy(t), store, config)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, _, err := rec.EvaluateAndRecord(context.Background(), "tool", map[string]any{}); err != nil {
			t.Fatalf("EvaluateAndRecord() error = %v", err)
		}
	}

	// Close drains the archive channel.
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	count, err := store.Count(context.Background(), &evidence.Query{AuditID: rec.AuditID()})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 5 {
		t.Errorf("archived = %d, want 5", count)
	}
}

type failingStorage struct {
	storage.MemoryStorage
}

func (f *failingStorage) Store(ctx context.Context, e *evidence.Evidence) error {
	return evidence.NewStorageError("failing", "store", errors.New("disk full"))
}

type countingObserver struct {
	recorded, archived, failed, dropped atomic.Int64
}

func (o *countingObserver) ObserveRecorded(e *evidence.Evidence) { o.recorded.Add(1) }
func (o *countingObserver) ObserveArchived(d time.Duration, err error) {
	if err != nil {
		o.failed.Add(1)
		return
	}
	o.archived.Add(1)
}
func (o *countingObserver) ObserveArchiveDropped() { o.dropped.Add(1) }

func TestRecorder_ArchiveFailureDoesNotAffectLog(t *testing.T) {
	defer goleak.VerifyNone(t)

	observer := &countingObserver{}
	rec, err := NewRecorder(testPolicy(t), &failingStorage{}, nil, WithObserver(observer))
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, _, err := rec.EvaluateAndRecord(context.Background(), "tool", map[string]any{}); err != nil {
			t.Fatalf("EvaluateAndRecord() error = %v", err)
		}
	}
	rec.Close()

	if rec.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rec.Len())
	}
	if observer.recorded.Load() != 3 {
		t.Errorf("recorded = %d, want 3", observer.recorded.Load())
	}
	if observer.failed.Load() != 3 {
		t.Errorf("failed archives = %d, want 3", observer.failed.Load())
	}
}

func TestRecorder_Closed(t *testing.T) {
	rec, err := NewRecorder(testPolicy(t), nil, nil)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	rec.Close()
	rec.Close() // idempotent

	_, _, err = rec.EvaluateAndRecord(context.Background(), "tool", map[string]any{})
	if !errors.Is(err, evidence.ErrRecorderClosed) {
		t.Errorf("error = %v, want ErrRecorderClosed", err)
	}
}

func TestNewRecorder_NilDocument(t *testing.T) {
	if _, err := NewRecorder(nil, nil, nil); err == nil {
		t.Error("NewRecorder(nil) expected error")
	}
}

func TestRecorder_FixedAuditID(t *testing.T) {
	rec, err := NewRecorder(testPolicy(t), nil, nil, WithAuditID("audit-1"))
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()
	if rec.AuditID() != "audit-1" {
		t.Errorf("AuditID() = %q", rec.AuditID())
	}
}
