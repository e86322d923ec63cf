package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

// JSONExporter exports reports and evidence entries to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes the report to w as a single JSON object.
func (e *JSONExporter) Export(ctx context.Context, report *evidence.Report, w io.Writer) error {
	if report == nil {
		return evidence.NewExportError("json", 0, errNilReport)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := e.marshal(report)
	if err != nil {
		return evidence.NewExportError("json", len(report.Evidence), err)
	}
	if _, err := w.Write(data); err != nil {
		return evidence.NewExportError("json", len(report.Evidence), err)
	}
	return nil
}

// ExportRecords writes evidence entries to w as a JSON array. An empty list
// is written as [].
func (e *JSONExporter) ExportRecords(ctx context.Context, records []*evidence.Evidence, w io.Writer) error {
	if len(records) == 0 {
		_, err := w.Write([]byte("[]"))
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := e.marshal(records)
	if err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	if _, err := w.Write(data); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	return nil
}

func (e *JSONExporter) marshal(v any) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
