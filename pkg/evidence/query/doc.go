// Package query provides validation and defaults for evidence archive queries.
//
// # Query Validation
//
// The validator ensures query parameters are valid before execution:
//
//   - 0 <= Limit <= MaxLimit
//   - Offset >= 0
//   - Sort field is one of timestamp, sequence, capability
//   - Sort order is asc or desc
//   - Time range is valid (start <= end)
//   - RuleID names a single rule
//
// # Basic Usage
//
//	q := &evidence.Query{
//	    AuditID:   auditID,
//	    Compliant: &falseVal,
//	    SortBy:    "sequence",
//	}
//	if err := query.Validate(q); err != nil {
//	    return err
//	}
//	query.ApplyDefaults(q)
//
//	records, err := store.Query(ctx, q)
package query
