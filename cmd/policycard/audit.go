package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/auditor"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/catalog"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/export"
)

var auditFlags struct {
	policy   string
	catalog  string
	format   string
	output   string
	archive  string
	progress bool
	strict   bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Evaluate a capability catalog and produce an audit report",
	Long: `Evaluate every capability in a catalog file, in order, within one audit
period and write the final report with its evidence hash.

The catalog is a YAML or JSON list of {name, metadata, context} entries,
or a mapping with a capabilities key.

Examples:
  # Report to stdout
  policycard audit --policy policy.yaml --catalog capabilities.yaml

  # Archive evidence in sqlite and write a YAML report
  policycard audit --policy policy.yaml --catalog capabilities.yaml \
    --archive sqlite --format yaml --output report.yaml

  # Exit 3 when any capability is not compliant
  policycard audit --policy policy.yaml --catalog capabilities.yaml --strict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditFlags.policy, "policy", "p", "", "policy card file (default: policy source from config)")
	auditCmd.Flags().StringVar(&auditFlags.catalog, "catalog", "", "capability catalog file")
	auditCmd.Flags().StringVar(&auditFlags.format, "format", "json", "report format: json, yaml")
	auditCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "report file (default: stdout)")
	auditCmd.Flags().StringVar(&auditFlags.archive, "archive", "none", "evidence archive: none, memory, sqlite")
	auditCmd.Flags().BoolVar(&auditFlags.progress, "progress", false, "show progress on stderr")
	auditCmd.Flags().BoolVar(&auditFlags.strict, "strict", false, "exit 3 when any capability is not compliant")
}

func reportExporter(format string) (evidence.Exporter, error) {
	switch format {
	case "json", "":
		return export.NewJSONExporter(true), nil
	case "yaml":
		return export.NewYAMLExporter(), nil
	default:
		return nil, cli.NewConfigError("format", fmt.Sprintf("unsupported report format %q (want json or yaml)", format))
	}
}

func runAudit(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if auditFlags.catalog == "" {
		return cli.NewConfigError("catalog", "--catalog is required")
	}
	exporter, err := reportExporter(auditFlags.format)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(auditFlags.catalog)
	if err != nil {
		return cli.NewCommandError("audit", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := policySource(cfg.Policy, auditFlags.policy)
	if err != nil {
		return err
	}
	store, err := openStorage(cfg.Evidence, auditFlags.archive)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	logger := commandLogger(nil)
	opts := []auditor.Option{
		auditor.WithLogger(logger),
		auditor.WithRecorderConfig(recorderConfig(cfg.Evidence.Recorder)),
	}
	if store != nil {
		opts = append(opts, auditor.WithStorage(store))
	}

	svc, err := auditor.New(ctx, src, opts...)
	if err != nil {
		return cli.NewCommandError("audit", err)
	}

	var progress cli.ProgressReporter
	if auditFlags.progress {
		progress = cli.NewProgressReporter(os.Stderr)
		progress.Start(int64(len(cat.Capabilities)))
	}

	nonCompliant := 0
	for i, entry := range cat.Capabilities {
		_, e, err := svc.Evaluate(ctx, entry.Name, entry.Metadata, entry.Context)
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			svc.Close(context.Background())
			return cli.NewCommandError("audit", fmt.Errorf("evaluating %q: %w", entry.Name, err))
		}
		if !e.Result.Compliant {
			nonCompliant++
		}
		if progress != nil {
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	// Close drains the archive before the final report is built.
	r, err := svc.Close(ctx)
	if err != nil {
		return cli.NewCommandError("audit", err)
	}
	logger.Info("audit complete",
		"audit_id", r.AuditID,
		"capabilities", r.Summary.Total,
		"rejected", r.Summary.Rejected,
		"evidence_hash", r.EvidenceHash,
	)

	if err := writeReport(ctx, exporter, r, out, auditFlags.output); err != nil {
		return err
	}

	if auditFlags.strict && nonCompliant > 0 {
		return cli.NewExitError(cli.ExitNonCompliant,
			fmt.Sprintf("%d of %d capabilities not compliant", nonCompliant, len(cat.Capabilities)))
	}
	return nil
}

// writeReport exports r to path, or to out when path is empty.
func writeReport(ctx context.Context, exporter evidence.Exporter, r *evidence.Report, out io.Writer, path string) error {
	if path == "" {
		return exporter.Export(ctx, r, out)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := exporter.Export(ctx, r, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
