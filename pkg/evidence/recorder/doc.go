// Package recorder evaluates capabilities against a policy card and records
// each evaluation as immutable evidence in an append-only log.
//
// # Recording Flow
//
//  1. The rule engine evaluates the metadata (outside any lock)
//  2. The metadata is fingerprinted (SHA-256 over its canonical JSON)
//  3. Escalation triggers are evaluated when a runtime context is supplied
//  4. Under the recorder lock the next sequence number and timestamp are
//     assigned and the entry is appended
//  5. A copy is queued for the archive worker, which writes it to storage
//
// One Recorder covers one audit period: it owns the period's audit id and the
// log is never cleared. Start a new period by creating a new Recorder.
//
// # Basic Usage
//
//	rec, err := recorder.NewRecorder(doc, store, recorder.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//
//	result, ev, err := rec.EvaluateAndRecord(ctx, "web-search", metadata)
//
// # Archive Failures
//
// Storage errors and a full archive channel are logged and reported to the
// Observer; they never fail EvaluateAndRecord or alter the in-memory log.
package recorder
