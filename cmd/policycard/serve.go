package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/auditor"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/server"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	policy        string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the policy card API server",
	Long: `Start the HTTP API with the configured policy source, evidence archive,
report scheduler and telemetry.

The server evaluates capabilities on POST /v1/evaluate, serves reports on
GET /v1/report and reloads the policy on file change, new git commits or
POST /v1/policy/reload. Each reload that changes the policy closes the
audit period and writes its final report to report.output_dir.

Examples:
  # Start with default config
  policycard serve

  # Start with custom config
  policycard serve --config /etc/policycard/config.yaml

  # Override listen address
  policycard serve --listen 0.0.0.0:8080

  # Validate config and policy without starting the server
  policycard serve --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVarP(&serveFlags.policy, "policy", "p", "", "policy card file (overrides policy source from config)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and policy without starting the server")
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
		if err := config.Validate(cfg); err != nil {
			return cli.NewConfigError("log-level", err.Error())
		}
	}

	tel, err := telemetry.New(&cfg.Telemetry, os.Stderr)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	logger := tel.Logger()
	slog.SetDefault(logger)
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	go func() {
		select {
		case <-parent.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	src, err := policySource(cfg.Policy, serveFlags.policy)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	store, err := openStorage(cfg.Evidence, "")
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("closing evidence archive failed", "error", err)
			}
		}()
	}

	eng := engine.NewEngine(logger,
		engine.WithObserver(tel.Metrics()),
		engine.WithTracer(tel.Tracer().Provider().Tracer(engine.TracerName)),
	)
	opts := []auditor.Option{
		auditor.WithLogger(logger),
		auditor.WithEngine(eng),
		auditor.WithRecorderConfig(recorderConfig(cfg.Evidence.Recorder)),
		auditor.WithObserver(tel.Metrics()),
		auditor.WithPeriodClosed(periodClosedWriter(cfg.Report, logger)),
	}
	if store != nil {
		opts = append(opts, auditor.WithStorage(store))
	}

	svc, err := auditor.New(ctx, src, opts...)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	doc := svc.Document()
	logger.Info("policy loaded",
		"policy", doc.Name,
		"version", doc.Version,
		"source", svc.Provenance().Source,
		"digest", svc.Provenance().Digest,
		"audit_id", svc.AuditID(),
	)

	if serveFlags.dryRun {
		svc.Close(context.Background())
		fmt.Printf("✓ Configuration valid\n✓ Policy %s@%s valid (%d rules)\n", doc.Name, doc.Version, len(doc.Rules))
		return nil
	}

	tel.Health().RegisterCheck("policy", health.PolicyCheck(svc.Document))
	if store != nil {
		tel.Health().RegisterCheck("storage", health.StorageCheck(store))
	}

	if cfg.Policy.Watch {
		go func() {
			err := svc.Watch(ctx)
			switch {
			case errors.Is(err, auditor.ErrNotWatchable):
				logger.Warn("policy source cannot be watched", "source", svc.Provenance().Source)
			case err != nil && ctx.Err() == nil:
				logger.Error("policy watch stopped", "error", err)
			}
		}()
	}

	scheduler := report.NewScheduler(svc.Report, report.SchedulerConfig{
		Schedule:  cfg.Report.Schedule,
		OutputDir: cfg.Report.OutputDir,
		Pretty:    cfg.Report.Pretty,
	})
	if err := scheduler.Start(ctx); err != nil {
		svc.Close(context.Background())
		return cli.NewConfigError("report.schedule", err.Error())
	}
	defer scheduler.Stop()
	if next := scheduler.NextRun(); next != nil {
		logger.Info("report scheduler started", "schedule", cfg.Report.Schedule, "next_run", next)
	}

	srv := server.New(&cfg.Server, svc,
		server.WithTelemetry(tel),
		server.WithBuildInfo(server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate}),
		server.WithPrettyJSON(cfg.Report.Pretty),
		server.WithQueryLimits(cfg.Evidence.Query.DefaultLimit, cfg.Evidence.Query.MaxLimit),
	)

	serveErr := srv.Start(ctx)
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error("server stopped", "error", serveErr)
	}

	// The final report of the open period is written by the period hook.
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if _, err := svc.Close(closeCtx); err != nil && !errors.Is(err, auditor.ErrClosed) {
		logger.Error("closing audit period failed", "error", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	logger.Info("server stopped")

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return cli.NewCommandError("serve", serveErr)
	}
	return nil
}

// periodClosedWriter writes the final report of every closed audit period.
func periodClosedWriter(cfg config.ReportConfig, logger *slog.Logger) auditor.PeriodClosedFunc {
	return func(ctx context.Context, r *evidence.Report) {
		if cfg.OutputDir == "" {
			return
		}
		path, err := report.WriteSnapshot(ctx, r, cfg.OutputDir, cfg.Pretty)
		if err != nil {
			logger.Error("writing final report failed", "audit_id", r.AuditID, "error", err)
			return
		}
		logger.Info("final report written", "audit_id", r.AuditID, "path", path, "evidence_hash", r.EvidenceHash)
	}
}
