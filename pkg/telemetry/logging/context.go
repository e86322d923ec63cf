package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// AuditIDKey is the context key for the audit period id.
	AuditIDKey contextKey = "audit_id"

	// PolicyKey is the context key for the policy name.
	PolicyKey contextKey = "policy"

	// CapabilityKey is the context key for the capability being evaluated.
	CapabilityKey contextKey = "capability"
)

var contextKeys = []contextKey{RequestIDKey, AuditIDKey, PolicyKey, CapabilityKey}

type attrsKey struct{}

// WithAttrs attaches extra key/value pairs to the context. They are appended
// after any pairs already attached.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

// WithAuditID adds an audit id to the context.
func WithAuditID(ctx context.Context, auditID string) context.Context {
	return context.WithValue(ctx, AuditIDKey, auditID)
}

// GetAuditID retrieves the audit id from the context.
func GetAuditID(ctx context.Context) string {
	return get(ctx, AuditIDKey)
}

// WithPolicy adds a policy name to the context.
func WithPolicy(ctx context.Context, policy string) context.Context {
	return context.WithValue(ctx, PolicyKey, policy)
}

// WithCapability adds a capability name to the context.
func WithCapability(ctx context.Context, capability string) context.Context {
	return context.WithValue(ctx, CapabilityKey, capability)
}

func get(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Attrs returns the log fields carried by ctx as key/value pairs.
func Attrs(ctx context.Context) []any {
	var args []any
	for _, key := range contextKeys {
		if v := get(ctx, key); v != "" {
			args = append(args, string(key), v)
		}
	}
	if ctx != nil {
		if extra, ok := ctx.Value(attrsKey{}).([]any); ok {
			args = append(args, extra...)
		}
	}
	return args
}

// FromContext returns logger with the fields carried by ctx attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	args := Attrs(ctx)
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
