package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/export"
)

// ReportFunc produces a report snapshot. Generator.Generate satisfies it.
type ReportFunc func(ctx context.Context) (*evidence.Report, error)

// SchedulerConfig configures periodic report snapshots.
type SchedulerConfig struct {
	// Schedule is a standard five-field cron expression. Empty disables
	// the scheduler.
	Schedule string

	// OutputDir is where snapshot files are written.
	OutputDir string

	// Pretty enables indented JSON output.
	Pretty bool
}

// Scheduler writes report snapshots on a cron schedule.
type Scheduler struct {
	report  ReportFunc
	config  SchedulerConfig
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a report scheduler.
func NewScheduler(report ReportFunc, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		report: report,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "evidence.report.scheduler"),
	}
}

// Start schedules snapshot writes.
//
// Common cron expressions:
//   - "0 * * * *"    - Hourly
//   - "0 0 * * *"    - Daily at midnight
//   - "0 0 * * 0"    - Weekly on Sunday at midnight
//
// If Schedule is empty, the scheduler does nothing. The scheduler stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("report schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("report scheduler already running")
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}
	if err := os.MkdirAll(s.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled report failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reports: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("report scheduler started",
		"schedule", s.config.Schedule,
		"output_dir", s.config.OutputDir,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce generates one report and writes it to the output directory,
// returning the file path.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	r, err := s.report(ctx)
	if err != nil {
		return "", err
	}
	return WriteSnapshot(ctx, r, s.config.OutputDir, s.config.Pretty)
}

// WriteSnapshot writes r as JSON to dir/<policy>-<audit id>-<seq>.json where
// seq is the number of entries the report covers. The file is written to a
// temporary name and renamed into place.
func WriteSnapshot(ctx context.Context, r *evidence.Report, dir string, pretty bool) (string, error) {
	var buf bytes.Buffer
	if err := export.NewJSONExporter(pretty).Export(ctx, r, &buf); err != nil {
		return "", err
	}

	name := SnapshotName(r)
	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", evidence.NewReportError(r.AuditID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", evidence.NewReportError(r.AuditID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", evidence.NewReportError(r.AuditID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", evidence.NewReportError(r.AuditID, err)
	}

	slog.Default().With("component", "evidence.report.scheduler").Info("report snapshot written",
		"path", path,
		"audit_id", r.AuditID,
		"entries", len(r.Evidence),
	)
	return path, nil
}

// SnapshotName returns the file name for a report snapshot.
func SnapshotName(r *evidence.Report) string {
	return fmt.Sprintf("%s-%s-%06d.json", sanitize(r.PolicyName), r.AuditID, len(r.Evidence))
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("report scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled snapshot time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
