// Package server exposes the auditor over HTTP.
//
// # Routes
//
//	POST /v1/evaluate        evaluate and record one capability
//	GET  /v1/report          report over the current audit period
//	GET  /v1/policy          active policy card and its provenance
//	POST /v1/policy/reload   reload the policy source
//	GET  /v1/evidence        query the evidence archive
//	GET  /health             liveness
//	GET  /ready              readiness (policy and archive checks)
//	GET  /metrics            Prometheus exposition
//	GET  /version            build information
//
// /v1/report accepts start and end (RFC 3339) to label the report window and
// format=json|yaml. /v1/evidence accepts the archive query filters as query
// parameters and format=json|yaml|csv.
//
// # Authentication
//
// With server.auth.enabled, /v1 routes require an API key sent as
// "Authorization: Bearer <key>" or X-API-Key. Evaluate needs the evaluate
// scope, reload needs admin and the read routes need read. The admin scope
// grants every route. Health, readiness, metrics and version stay open.
// A missing or unknown key is answered with 401 and code unauthorized, a key
// without the scope with 403 and code forbidden.
//
// server.rate_limit throttles /v1 routes per key, or per remote host when
// authentication is off. Clients over their rate get 429 with Retry-After.
//
// # Errors
//
// Failures are returned as
//
//	{"error": {"code": "invalid_request", "message": "...", "request_id": "..."}}
//
// Policy reload failures carry the loader's errors in error.details.
//
// # Lifecycle
//
//	srv := server.New(&cfg.Server, svc, server.WithTelemetry(tel))
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled or Shutdown is called, then drains
// in-flight requests within the configured shutdown timeout.
package server
