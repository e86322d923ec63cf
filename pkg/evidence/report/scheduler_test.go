package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid hourly schedule", "0 * * * *", true, false},
		{"valid daily schedule", "0 0 * * *", true, false},
		{"empty schedule - no error, not running", "", false, false},
		{"invalid schedule", "invalid cron", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			gen := newGenerator(t, newRecorder(t))
			s := NewScheduler(gen.Generate, SchedulerConfig{
				Schedule:  tt.schedule,
				OutputDir: t.TempDir(),
			})

			ctx, cancel := context.WithCancel(context.Background())
			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && s.NextRun() == nil {
				t.Error("NextRun() returned nil for running scheduler")
			}

			s.Stop()
			cancel()
			if s.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	rec := newRecorder(t)
	record(t, rec, "a", eu(), nil)
	record(t, rec, "b", us(), nil)

	dir := t.TempDir()
	s := NewScheduler(newGenerator(t, rec).Generate, SchedulerConfig{OutputDir: dir, Pretty: true})

	path, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if want := filepath.Join(dir, "geo-audit-test-000002.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var r evidence.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("snapshot is not a JSON report: %v", err)
	}
	if err := Verify(&r); err != nil {
		t.Errorf("snapshot fails verification: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d files, want 1 (temp file left behind?)", len(entries))
	}
}

func TestScheduler_RunOnceError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(func(context.Context) (*evidence.Report, error) { return nil, boom }, SchedulerConfig{OutputDir: t.TempDir()})
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("RunOnce() error = %v, want %v", err, boom)
	}
}

func TestSnapshotName(t *testing.T) {
	r := &evidence.Report{PolicyName: "eu/geo policy", AuditID: "a1", Evidence: make([]evidence.Evidence, 12)}
	if got := SnapshotName(r); got != "eu_geo_policy-a1-000012.json" {
		t.Errorf("SnapshotName() = %q", got)
	}
}
