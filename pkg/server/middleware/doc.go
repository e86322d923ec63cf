// Package middleware provides the HTTP middleware chain for the policy card
// API.
//
// # Chain Order
//
// The server wraps its mux outermost first:
//
//	Recovery -> RequestID -> CORS -> BodyLimit -> mux
//
// Every route is additionally wrapped with Instrument, which logs the request
// and reports status and latency for the route pattern (not the raw path) so
// metric cardinality stays bounded.
//
// # Request IDs
//
// RequestID accepts a client-supplied X-Request-ID or generates a UUID. The id
// is stored with logging.WithRequestID so every log line written through
// logging.FromContext carries it.
package middleware
