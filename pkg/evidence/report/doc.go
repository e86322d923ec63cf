// Package report builds audit reports from an evidence log.
//
// A Generator reads a consistent snapshot of a recorder's log and produces
// an evidence.Report with summary counts, KPI classifications, monitoring
// detector results, the policy's assurance mapping and a chained evidence
// hash. Generating a report never mutates the log, so reports over a
// growing log agree on the hash of every shared prefix.
//
// # Evidence Hash
//
// The chain is seeded with the policy name and audit id and folds in the
// canonical JSON of each entry in sequence order:
//
//	h0 = sha256(policy_name || audit_id)
//	hi = sha256(h(i-1) || json(evidence_i))
//
// The final digest is rendered as "sha256:<hex>". Verify and VerifyPrefix
// recompute the chain from a report's own fields.
//
// # KPI Metrics
//
//	compliance_rate  compliant / total   higher is better
//	rejection_rate   rejected / total    lower is better
//	warning_rate     warned / total      lower is better
//	escalation_rate  escalated / total   lower is better
//
// A zero total yields 0 for every metric.
//
// # Scheduling
//
// Scheduler writes snapshot reports to a directory on a cron schedule.
package report
