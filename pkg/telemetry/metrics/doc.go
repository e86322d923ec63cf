// Package metrics provides Prometheus metrics for the policy card auditor.
//
// # Metrics Categories
//
//   - Evaluation Metrics: evaluation count by outcome, duration, rule hits
//   - Evidence Metrics: recorded entries, escalations, archive writes and drops
//   - Report Metrics: report generation, KPI values and fired detectors
//   - Request Metrics: HTTP API request count and duration
//   - Policy Metrics: policy reloads
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	eng := engine.NewEngine(logger, engine.WithObserver(collector))
//	rec, _ := recorder.New(doc, recorder.WithObserver(collector))
//	gen, _ := report.NewGenerator(rec, report.WithObserver(collector))
//
//	http.Handle("/metrics", collector.Handler())
//
// The Collector satisfies the observer interfaces of the engine, recorder and
// report packages, so those packages never import Prometheus.
//
// # Cardinality
//
// Rule id and detector labels come from the loaded policy card and are
// bounded by it. A CardinalityLimiter folds anything past the limit into
// "other" in case a card grows without bound across reloads.
package metrics
