package auditor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/catalog"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/storage"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/source"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
)

const policyV1 = `
policy_card_version: "1.0"
name: geo
rules:
  - id: geo-restriction
    effect: deny
    reason: processing outside the EU
    condition:
      field: locations
      operator: not_any_of
      values: [EU, EEA]
escalation:
  triggers:
    - condition: "risk_score > 0.8"
      action: human_review
kpis_thresholds:
  thresholds:
    - metric: compliance_rate
      target: 1.0
      critical_threshold: 0.5
`

var policyV2 = strings.Replace(policyV1, `"1.0"`, `"1.1"`, 1)

const invalidPolicy = `
policy_card_version: "1.0"
name: geo
rules:
  - id: broken
    effect: deny
    condition:
      field: x
      operator: roughly
      value: 1
`

func eu() map[string]any { return map[string]any{"locations": []any{"EU"}} }
func us() map[string]any { return map[string]any{"locations": []any{"US"}} }

func fixedClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

type fakeObserver struct {
	mu       sync.Mutex
	recorded int
	reports  int
	reloads  []bool
	active   []string
}

func (f *fakeObserver) ObserveRecorded(*evidence.Evidence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded++
}
func (f *fakeObserver) ObserveArchived(time.Duration, error) {}
func (f *fakeObserver) ObserveArchiveDropped()               {}
func (f *fakeObserver) ObserveReport(*evidence.Report, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports++
}
func (f *fakeObserver) ObservePolicyReload(success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, success)
}
func (f *fakeObserver) SetActivePolicy(name, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = append(f.active, name+"@"+version)
}

func newService(t *testing.T, src source.Source, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock()), WithLogger(logging.Discard())}, opts...)
	s, err := New(context.Background(), src, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func evaluate(t *testing.T, s *Service, capability string, metadata, vars map[string]any) *evidence.Evidence {
	t.Helper()
	_, e, err := s.Evaluate(context.Background(), capability, metadata, vars)
	if err != nil {
		t.Fatalf("Evaluate(%s) error = %v", capability, err)
	}
	return e
}

func TestNew_InvalidSource(t *testing.T) {
	_, err := New(context.Background(), source.NewMemorySource("bad", []byte(invalidPolicy)))
	var el *card.ErrorList
	if !errors.As(err, &el) {
		t.Fatalf("New() error = %v, want *card.ErrorList", err)
	}
	if _, err := New(context.Background(), nil); err == nil {
		t.Error("New(nil) expected error")
	}
}

func TestService_EvaluateAndReport(t *testing.T) {
	s := newService(t, source.NewMemorySource("geo", []byte(policyV1)))
	defer s.Close(context.Background())

	first := evaluate(t, s, "search", eu(), nil)
	evaluate(t, s, "translate", us(), map[string]any{"risk_score": 0.9})

	if first.Sequence != 1 || first.AuditID != s.AuditID() {
		t.Errorf("first entry = seq %d audit %s, want seq 1 audit %s", first.Sequence, first.AuditID, s.AuditID())
	}

	r, err := s.Report(context.Background())
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if r.Summary.Total != 2 || r.Summary.Rejected != 1 || r.Summary.Escalated != 1 {
		t.Errorf("Summary = %+v", r.Summary)
	}
	if r.Provenance == nil || r.Provenance.Source != "memory:geo" {
		t.Errorf("Provenance = %+v", r.Provenance)
	}
	if err := report.Verify(r); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestService_EvaluateCatalog(t *testing.T) {
	s := newService(t, source.NewMemorySource("geo", []byte(policyV1)))
	defer s.Close(context.Background())

	c, err := catalog.LoadBytes([]byte(`
- name: search
  metadata: {locations: [EU]}
- name: translate
  metadata: {locations: [US]}
  context: {risk_score: 0.95}
`), "catalog")
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.EvaluateCatalog(context.Background(), c)
	if err != nil {
		t.Fatalf("EvaluateCatalog() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Capability != "search" || !entries[0].Result.Compliant {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Result.Compliant || !entries[1].Escalated() {
		t.Errorf("entry 1 should be rejected and escalated: %+v", entries[1])
	}
}

func TestService_Reload(t *testing.T) {
	src := source.NewMemorySource("geo", []byte(policyV1))
	obs := &fakeObserver{}
	var closedReports []*evidence.Report
	s := newService(t, src,
		WithObserver(obs),
		WithPeriodClosed(func(_ context.Context, r *evidence.Report) {
			closedReports = append(closedReports, r)
		}),
	)
	defer s.Close(context.Background())

	evaluate(t, s, "a", eu(), nil)
	evaluate(t, s, "b", us(), nil)
	firstAudit := s.AuditID()

	t.Run("unchanged document keeps the period", func(t *testing.T) {
		final, err := s.Reload(context.Background())
		if err != nil || final != nil {
			t.Fatalf("Reload() = %v, %v; want nil, nil", final, err)
		}
		if s.AuditID() != firstAudit {
			t.Error("audit id changed on unchanged reload")
		}
	})

	t.Run("invalid document is rejected", func(t *testing.T) {
		src.Set([]byte(invalidPolicy))
		final, err := s.Reload(context.Background())
		var el *card.ErrorList
		if !errors.As(err, &el) || final != nil {
			t.Fatalf("Reload() = %v, %v; want *card.ErrorList", final, err)
		}
		if s.AuditID() != firstAudit || s.Document().Version != "1.0" {
			t.Error("rejected reload replaced the active policy")
		}
		evaluate(t, s, "c", eu(), nil)
	})

	t.Run("valid document closes the period", func(t *testing.T) {
		src.Set([]byte(policyV2))
		final, err := s.Reload(context.Background())
		if err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if final.AuditID != firstAudit || final.Summary.Total != 3 || final.PolicyVersion != "1.0" {
			t.Errorf("final report = audit %s total %d version %s", final.AuditID, final.Summary.Total, final.PolicyVersion)
		}
		if err := report.Verify(final); err != nil {
			t.Errorf("final report does not verify: %v", err)
		}
		if s.AuditID() == firstAudit {
			t.Error("audit id not renewed")
		}
		if s.Document().Version != "1.1" {
			t.Errorf("active version = %s, want 1.1", s.Document().Version)
		}

		fresh, err := s.Report(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if fresh.Summary.Total != 0 || fresh.AuditID != s.AuditID() {
			t.Errorf("new period report = %+v", fresh.Summary)
		}

		e := evaluate(t, s, "d", eu(), nil)
		if e.Sequence != 1 {
			t.Errorf("first sequence of new period = %d, want 1", e.Sequence)
		}
	})

	if len(closedReports) != 1 {
		t.Errorf("period closed hook called %d times, want 1", len(closedReports))
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.reloads) != 2 || obs.reloads[0] || !obs.reloads[1] {
		t.Errorf("reload observations = %v, want [false true]", obs.reloads)
	}
	if len(obs.active) != 2 || obs.active[1] != "geo@1.1" {
		t.Errorf("active policy observations = %v", obs.active)
	}
}

func TestService_Close(t *testing.T) {
	var hook int
	s := newService(t, source.NewMemorySource("geo", []byte(policyV1)),
		WithPeriodClosed(func(context.Context, *evidence.Report) { hook++ }))

	evaluate(t, s, "a", eu(), nil)

	final, err := s.Close(context.Background())
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if final.Summary.Total != 1 || hook != 1 {
		t.Errorf("final total = %d, hook = %d", final.Summary.Total, hook)
	}

	if _, err := s.Close(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, _, err := s.Evaluate(context.Background(), "b", eu(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Evaluate after Close error = %v, want ErrClosed", err)
	}
	if _, err := s.Reload(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Reload after Close error = %v, want ErrClosed", err)
	}
}

func TestService_Query(t *testing.T) {
	t.Run("no archive", func(t *testing.T) {
		s := newService(t, source.NewMemorySource("geo", []byte(policyV1)))
		defer s.Close(context.Background())
		if _, _, err := s.Query(context.Background(), nil); !errors.Is(err, ErrNoArchive) {
			t.Errorf("Query() error = %v, want ErrNoArchive", err)
		}
	})

	t.Run("archived entries", func(t *testing.T) {
		store := storage.NewMemoryStorage()
		s := newService(t, source.NewMemorySource("geo", []byte(policyV1)), WithStorage(store))

		evaluate(t, s, "a", eu(), nil)
		evaluate(t, s, "b", us(), nil)
		evaluate(t, s, "c", us(), nil)
		auditID := s.AuditID()
		if _, err := s.Close(context.Background()); err != nil {
			t.Fatal(err)
		}

		no := false
		records, total, err := s.Query(context.Background(), &evidence.Query{AuditID: auditID, Compliant: &no, Limit: 1})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(records) != 1 || total != 2 {
			t.Errorf("Query() = %d records, total %d; want 1, 2", len(records), total)
		}

		_, _, err = s.Query(context.Background(), &evidence.Query{SortBy: "risk"})
		var qe *evidence.QueryError
		if !errors.As(err, &qe) {
			t.Errorf("invalid query error = %v, want *evidence.QueryError", err)
		}
	})
}

func TestService_WatchNotSupported(t *testing.T) {
	s := newService(t, source.NewMemorySource("geo", []byte(policyV1)))
	defer s.Close(context.Background())

	if err := s.Watch(context.Background()); !errors.Is(err, ErrNotWatchable) {
		t.Errorf("Watch() error = %v, want ErrNotWatchable", err)
	}
}

func TestService_WatchFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(policyV1), 0o644); err != nil {
		t.Fatal(err)
	}

	closed := make(chan *evidence.Report, 1)
	s := newService(t, source.NewFileSource(path, 10*time.Millisecond),
		WithPeriodClosed(func(_ context.Context, r *evidence.Report) {
			select {
			case closed <- r:
			default:
			}
		}))
	firstAudit := s.AuditID()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(policyV2), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-closed:
		if r.AuditID != firstAudit {
			t.Errorf("closed audit id = %s, want %s", r.AuditID, firstAudit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("file change did not close the period")
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() error = %v", err)
	}
	if _, err := s.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
