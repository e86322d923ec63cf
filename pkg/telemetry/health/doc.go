// Package health provides liveness and readiness endpoints for the auditor
// service.
//
// Liveness only reports that the process is serving. Readiness runs every
// registered check concurrently, each bounded by the checker timeout, and
// returns 503 when any of them fails. The auditor registers a "policy" check
// (a card is loaded) and, when an archive is configured, an "archive" check
// (the backend answers a count query).
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("policy", health.PolicyCheck(svc.Document))
//	checker.RegisterCheck("archive", health.StorageCheck(store))
//	mux.Handle("/health", checker.LivenessHandler())
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
