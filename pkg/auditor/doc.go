// Package auditor runs one policy card against a stream of capability
// evaluations and closes audit periods when the card changes.
//
// A Service owns the active document, the recorder for the current audit
// period and a report generator over it. Reload loads the source again:
//
//   - an invalid document is rejected and the active one stays in force
//   - a document with the same digest is ignored
//   - any other document closes the period: the recorder is closed, a final
//     report is generated and handed to the period-closed hook, and a fresh
//     recorder with a new audit id starts
//
// Evaluations hold a read lock for their whole duration and reloads take the
// write lock, so every evidence entry belongs to exactly one period.
package auditor
