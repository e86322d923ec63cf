// Package export renders audit reports and evidence entries.
//
// # Export Formats
//
//   - JSON: report object or entry array, with optional pretty-printing
//   - YAML: report document or entry sequence
//   - CSV: one row per evidence entry with a fixed column set
//
// Every exporter implements evidence.Exporter (whole reports) and
// evidence.RecordExporter (entry lists returned by an archive query).
//
//	exporter := export.NewJSONExporter(true)
//	if err := exporter.Export(ctx, report, os.Stdout); err != nil {
//	    return err
//	}
//
// The CSV exporter writes the report's evidence log only; the summary and
// KPI sections have no tabular form.
//
// # Error Handling
//
// Exporters return *evidence.ExportError when encoding or writing fails.
package export
