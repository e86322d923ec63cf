// Package evidence defines the audit evidence and report model shared by the
// recorder, storage backends, exporters and report generator.
//
// # Architecture
//
// The evidence system consists of four layers:
//
//  1. Recorder - evaluates capabilities and appends evidence to an in-memory log
//  2. Storage Backend - optionally archives evidence (memory, SQLite)
//  3. Report Generator - aggregates a log snapshot into an AuditReport
//  4. Exporters - write reports and evidence as JSON, YAML or CSV
//
// # Evidence
//
// Each evidence entry captures:
//   - Capability name and timestamp
//   - The evaluation result (violations, warnings)
//   - A SHA-256 fingerprint of the canonical metadata
//   - Escalation triggers that fired, with the context they fired against
//   - A sequence number, monotonically increasing from 1 within an audit period
//
// Evidence is immutable once recorded. The in-memory log is append-only and
// storage backends expose no delete operation.
//
// # Recording Flow
//
//	capability + metadata (+ context)
//	     ↓
//	Rule Engine (pure evaluation)
//	     ↓
//	Recorder: fingerprint, sequence, append (under lock)
//	     ↓
//	Archive worker (async) → Storage Backend
//
// # Canonical Serialization
//
// Fingerprints and the evidence hash chain are computed over Canonical, which
// is encoding/json output. Map keys are sorted, struct fields appear in
// declaration order, times use RFC 3339 with nanoseconds and numbers use the
// shortest representation that round-trips.
//
// # Thread Safety
//
// All storage backends are safe for concurrent use.
package evidence
