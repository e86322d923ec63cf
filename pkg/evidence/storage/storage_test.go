package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
)

// createTempDB creates a temporary SQLite database for testing.
func createTempDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	config := &SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		Driver:       DriverModernc,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}

	s, err := NewSQLiteStorage(config)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEvidence(auditID string, seq uint64, capability string, compliant bool) *evidence.Evidence {
	e := &evidence.Evidence{
		Sequence:            seq,
		ID:                  auditID + "-" + capability + "-" + time.Duration(seq).String(),
		AuditID:             auditID,
		Capability:          capability,
		Timestamp:           base.Add(time.Duration(seq) * time.Minute),
		MetadataFingerprint: "sha256:00",
		Result: engine.Result{
			Compliant:  compliant,
			Violations: []engine.Violation{},
			Warnings:   []engine.Warning{},
		},
	}
	if !compliant {
		e.Result.Violations = append(e.Result.Violations, engine.Violation{RuleID: "geo-restriction", Reason: "outside EU"})
	}
	return e
}

func backends(t *testing.T) map[string]evidence.Storage {
	return map[string]evidence.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": createTempDB(t),
	}
}

func seed(t *testing.T, s evidence.Storage) {
	t.Helper()
	ctx := context.Background()
	entries := []*evidence.Evidence{
		sampleEvidence("audit-a", 1, "search", true),
		sampleEvidence("audit-a", 2, "translate", false),
		sampleEvidence("audit-a", 3, "search", false),
		sampleEvidence("audit-b", 1, "pay", true),
	}
	entries[2].Escalations = []engine.FiredTrigger{{Condition: "risk_score > 0.8", Action: "review"}}
	entries[2].Result.Warnings = []engine.Warning{{RuleID: "retention", Reason: "long"}}

	for _, e := range entries {
		if err := s.Store(ctx, e); err != nil {
			t.Fatalf("Store(%s/%d) error = %v", e.AuditID, e.Sequence, err)
		}
	}
}

func TestStorage_QueryFilters(t *testing.T) {
	yes, no := true, false
	start := base.Add(2 * time.Minute)

	tests := []struct {
		name  string
		query *evidence.Query
		want  int
	}{
		{"all", &evidence.Query{}, 4},
		{"nil query", nil, 4},
		{"by audit id", &evidence.Query{AuditID: "audit-a"}, 3},
		{"by capability", &evidence.Query{Capability: "search"}, 2},
		{"compliant", &evidence.Query{Compliant: &yes}, 2},
		{"non compliant", &evidence.Query{Compliant: &no}, 2},
		{"escalated", &evidence.Query{Escalated: &yes}, 1},
		{"by violation rule", &evidence.Query{RuleID: "geo-restriction"}, 2},
		{"by warning rule", &evidence.Query{RuleID: "retention"}, 1},
		{"rule id prefix does not match", &evidence.Query{RuleID: "geo"}, 0},
		{"start time", &evidence.Query{StartTime: &start}, 2},
		{"limit", &evidence.Query{Limit: 3}, 3},
		{"offset", &evidence.Query{Offset: 3}, 1},
		{"offset past end", &evidence.Query{Offset: 10}, 0},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				got, err := s.Query(context.Background(), tt.query)
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("Query() returned %d entries, want %d", len(got), tt.want)
				}

				if tt.query != nil && tt.query.Limit == 0 && tt.query.Offset == 0 {
					count, err := s.Count(context.Background(), tt.query)
					if err != nil {
						t.Fatalf("Count() error = %v", err)
					}
					if count != int64(tt.want) {
						t.Errorf("Count() = %d, want %d", count, tt.want)
					}
				}
			})
		}
	}
}

func TestStorage_SortOrder(t *testing.T) {
	for name, s := range backends(t) {
		seed(t, s)
		t.Run(name, func(t *testing.T) {
			got, err := s.Query(context.Background(), &evidence.Query{AuditID: "audit-a", SortBy: "sequence", SortOrder: "desc"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != 3 || got[0].Sequence != 3 || got[2].Sequence != 1 {
				t.Errorf("descending sequence order wrong: %v", sequences(got))
			}

			got, err = s.Query(context.Background(), &evidence.Query{SortBy: "capability"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if got[0].Capability != "pay" || got[len(got)-1].Capability != "translate" {
				t.Errorf("capability order wrong: first=%s last=%s", got[0].Capability, got[len(got)-1].Capability)
			}
		})
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := sampleEvidence("audit-r", 7, "search", false)
			in.Context = map[string]any{"risk_score": 0.9, "txn_id": int64(9007199254740993)}
			in.Escalations = []engine.FiredTrigger{{Condition: "risk_score > 0.8", Action: "review"}}

			if err := s.Store(context.Background(), in); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			out, err := s.Query(context.Background(), &evidence.Query{AuditID: "audit-r"})
			if err != nil || len(out) != 1 {
				t.Fatalf("Query() = %v, %v", out, err)
			}

			inJSON, _ := evidence.Canonical(in)
			outJSON, _ := evidence.Canonical(out[0])
			if string(inJSON) != string(outJSON) {
				t.Errorf("round trip changed canonical form:\n in: %s\nout: %s", inJSON, outJSON)
			}
		})
	}
}

func TestStorage_DuplicateRejected(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e := sampleEvidence("audit-d", 1, "search", true)
			if err := s.Store(context.Background(), e); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			dup := sampleEvidence("audit-d", 1, "other", true)
			dup.ID = "different-id"
			err := s.Store(context.Background(), dup)
			if !errors.Is(err, evidence.ErrDuplicateEvidence) {
				t.Errorf("Store(duplicate) error = %v, want ErrDuplicateEvidence", err)
			}

			var storageErr *evidence.StorageError
			if !errors.As(err, &storageErr) {
				t.Errorf("error type = %T, want *evidence.StorageError", err)
			}
		})
	}
}

func TestStorage_StoreNil(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Store(context.Background(), nil); err == nil {
				t.Error("Store(nil) expected error")
			}
		})
	}
}

func TestMemoryStorage_StoresCopies(t *testing.T) {
	s := NewMemoryStorage()
	e := sampleEvidence("audit-c", 1, "search", true)
	if err := s.Store(context.Background(), e); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	e.Capability = "mutated"

	got, _ := s.Query(context.Background(), &evidence.Query{})
	if got[0].Capability != "search" {
		t.Errorf("stored entry mutated through caller pointer: %q", got[0].Capability)
	}
	if s.Size() != 1 {
		t.Errorf("Size() = %d, want 1", s.Size())
	}
}

func sequences(records []*evidence.Evidence) []uint64 {
	out := make([]uint64, len(records))
	for i, r := range records {
		out[i] = r.Sequence
	}
	return out
}
