package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

// CSVExporter exports evidence entries to CSV format, one row per entry.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes the report's evidence log to w.
func (e *CSVExporter) Export(ctx context.Context, report *evidence.Report, w io.Writer) error {
	if report == nil {
		return evidence.NewExportError("csv", 0, errNilReport)
	}
	records := make([]*evidence.Evidence, len(report.Evidence))
	for i := range report.Evidence {
		records[i] = &report.Evidence[i]
	}
	return e.ExportRecords(ctx, records, w)
}

// ExportRecords writes evidence entries to w. Rule ids and escalation
// actions are joined with ';', context is embedded as JSON.
func (e *CSVExporter) ExportRecords(ctx context.Context, records []*evidence.Evidence, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for i, record := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := recordToRow(record)
		if err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(row); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

func headerRow() []string {
	return []string{
		"sequence", "id", "audit_id",
		"capability", "timestamp",
		"compliant", "violations", "warnings",
		"escalations", "metadata_fingerprint", "context",
	}
}

func recordToRow(record *evidence.Evidence) ([]string, error) {
	violations := make([]string, len(record.Result.Violations))
	for i, v := range record.Result.Violations {
		violations[i] = v.RuleID
	}
	warnings := make([]string, len(record.Result.Warnings))
	for i, w := range record.Result.Warnings {
		warnings[i] = w.RuleID
	}
	actions := make([]string, len(record.Escalations))
	for i, f := range record.Escalations {
		actions[i] = f.Action
	}

	vars := ""
	if len(record.Context) > 0 {
		data, err := json.Marshal(record.Context)
		if err != nil {
			return nil, err
		}
		vars = string(data)
	}

	return []string{
		strconv.FormatUint(record.Sequence, 10),
		record.ID,
		record.AuditID,
		record.Capability,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatBool(record.Result.Compliant),
		strings.Join(violations, ";"),
		strings.Join(warnings, ";"),
		strings.Join(actions, ";"),
		record.MetadataFingerprint,
		vars,
	}, nil
}
