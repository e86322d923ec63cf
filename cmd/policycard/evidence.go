package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/export"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/query"
)

var evidenceFlags struct {
	backend    string
	timeRange  string
	auditID    string
	capability string
	rule       string
	compliant  string
	escalated  string
	limit      int
	offset     int
	sortBy     string
	sortOrder  string
	format     string
	output     string
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query the evidence archive",
	Long: `Query and export archived evidence entries.

Subcommands:
  query   - Query evidence entries with filters

Examples:
  # Non-compliant decisions of one audit period
  policycard evidence query --audit-id 6f1c2d3e-... --compliant=false

  # Export a day of evidence as CSV
  policycard evidence query --time-range "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z" \
    --format csv --output evidence.csv`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence entries",
	Long: `Query evidence entries with filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2025-11-19T00:00:00Z/2025-11-20T00:00:00Z"

Sorting:
  --sort timestamp|sequence|capability, --order asc|desc

Examples:
  # Entries that matched a rule
  policycard evidence query --rule geo-restriction

  # Escalated entries as YAML
  policycard evidence query --escalated=true --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return queryEvidence(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd)

	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.auditID, "audit-id", "", "filter by audit id")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.capability, "capability", "", "filter by capability")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.rule, "rule", "", "filter by matched rule id")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.compliant, "compliant", "", "filter by compliance (true, false)")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.escalated, "escalated", "", "filter by escalation (true, false)")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.limit, "limit", 0, "max results (default from config)")
	evidenceQueryCmd.Flags().IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.sortBy, "sort", "", "sort field: timestamp, sequence, capability")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.sortOrder, "order", "", "sort order: asc, desc")
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.format, "format", "text", "output format: text, json, yaml, csv")
	evidenceQueryCmd.Flags().StringVarP(&evidenceFlags.output, "output", "o", "", "output file (default: stdout)")
}

func queryEvidence(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := buildEvidenceQuery(cfg.Evidence.Query.DefaultLimit, cfg.Evidence.Query.MaxLimit)
	if err != nil {
		return err
	}

	var exporter evidence.RecordExporter
	switch evidenceFlags.format {
	case "text", "":
	case "json":
		exporter = export.NewJSONExporter(true)
	case "yaml":
		exporter = export.NewYAMLExporter()
	case "csv":
		exporter = export.NewCSVExporter(true)
	default:
		return cli.NewConfigError("format", fmt.Sprintf("unsupported format %q (want text, json, yaml or csv)", evidenceFlags.format))
	}

	backend := evidenceFlags.backend
	if backend == "" {
		backend = cfg.Evidence.Backend
	}
	if backend == "none" {
		return cli.NewConfigError("backend", "no evidence archive configured")
	}
	store, err := openStorage(cfg.Evidence, backend)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("failed to open %s storage: %w", backend, err))
	}
	defer store.Close()

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("query failed: %w", err))
	}
	total, err := store.Count(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence", fmt.Errorf("count failed: %w", err))
	}

	if evidenceFlags.output != "" {
		f, err := os.Create(evidenceFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if exporter == nil {
		return outputEvidenceText(out, records, total, q)
	}
	return exporter.ExportRecords(ctx, records, out)
}

// buildEvidenceQuery turns the flags into a validated query.
func buildEvidenceQuery(defaultLimit, maxLimit int) (*evidence.Query, error) {
	q := &evidence.Query{
		AuditID:    evidenceFlags.auditID,
		Capability: evidenceFlags.capability,
		RuleID:     evidenceFlags.rule,
		Limit:      evidenceFlags.limit,
		Offset:     evidenceFlags.offset,
		SortBy:     evidenceFlags.sortBy,
		SortOrder:  evidenceFlags.sortOrder,
	}

	if evidenceFlags.timeRange != "" {
		parts := strings.Split(evidenceFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, cli.NewConfigError("time-range", "invalid time range format (expected: start/end)")
		}
		start, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, cli.NewConfigError("time-range", fmt.Sprintf("invalid start time: %v", err))
		}
		end, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, cli.NewConfigError("time-range", fmt.Sprintf("invalid end time: %v", err))
		}
		q.StartTime, q.EndTime = &start, &end
	}

	var err error
	if q.Compliant, err = optionalBool(evidenceFlags.compliant, "compliant"); err != nil {
		return nil, err
	}
	if q.Escalated, err = optionalBool(evidenceFlags.escalated, "escalated"); err != nil {
		return nil, err
	}

	if q.Limit == 0 && defaultLimit > 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		return nil, cli.NewConfigError("limit", fmt.Sprintf("limit must be <= %d, got %d", maxLimit, q.Limit))
	}
	query.ApplyDefaults(q)
	if err := query.Validate(q); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return q, nil
}

func optionalBool(value, flag string) (*bool, error) {
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, cli.NewConfigError(flag, fmt.Sprintf("invalid boolean %q", value))
	}
	return &b, nil
}

func outputEvidenceText(w io.Writer, records []*evidence.Evidence, total int64, q *evidence.Query) error {
	if q.StartTime != nil && q.EndTime != nil {
		fmt.Fprintf(w, "Time range: %s to %s\n",
			q.StartTime.Format(time.RFC3339),
			q.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Matching entries: %d (showing %d from offset %d)\n", total, len(records), q.Offset)
	fmt.Fprintln(w)

	if len(records) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return nil
	}

	for _, e := range records {
		status := "compliant"
		if !e.Result.Compliant {
			status = "rejected"
		}
		fmt.Fprintf(w, "%s  %s #%-4d %-24s %s", e.Timestamp.Format(time.RFC3339), e.AuditID, e.Sequence, e.Capability, status)
		for _, v := range e.Result.Violations {
			fmt.Fprintf(w, " [%s]", v.RuleID)
		}
		if e.Escalated() {
			fmt.Fprintf(w, " escalated(%d)", len(e.Escalations))
		}
		fmt.Fprintln(w)
	}
	return nil
}
