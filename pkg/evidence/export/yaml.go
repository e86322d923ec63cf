package export

import (
	"context"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

var errNilReport = errors.New("report is nil")

// YAMLExporter exports reports and evidence entries to YAML format.
type YAMLExporter struct {
	// Indent is the number of spaces per nesting level. Default: 2
	Indent int
}

// NewYAMLExporter creates a new YAML exporter with two-space indentation.
func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{Indent: 2}
}

// Export writes the report to w as a YAML document.
func (e *YAMLExporter) Export(ctx context.Context, report *evidence.Report, w io.Writer) error {
	if report == nil {
		return evidence.NewExportError("yaml", 0, errNilReport)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.encode(report, w); err != nil {
		return evidence.NewExportError("yaml", len(report.Evidence), err)
	}
	return nil
}

// ExportRecords writes evidence entries to w as a YAML sequence.
func (e *YAMLExporter) ExportRecords(ctx context.Context, records []*evidence.Evidence, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []*evidence.Evidence{}
	}
	if err := e.encode(records, w); err != nil {
		return evidence.NewExportError("yaml", len(records), err)
	}
	return nil
}

func (e *YAMLExporter) encode(v any, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	indent := e.Indent
	if indent <= 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
