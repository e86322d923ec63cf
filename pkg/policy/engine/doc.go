// Package engine evaluates compliance metadata against a loaded policy card.
//
// Evaluation is a pure function of (policy, metadata): every rule is checked in
// document order with no short-circuit, deny matches become violations and warn
// matches become warnings. A capability is compliant exactly when no deny rule
// matched.
//
// # Evaluation Flow
//
//	metadata record
//	       ↓
//	For each rule in document order:
//	  Resolve condition.field → (value, present)
//	  Apply operator(value, present, operand) → match?
//	    deny → Violation
//	    warn → Warning
//	       ↓
//	Result{Compliant, Violations, Warnings}
//
// # Field Paths
//
// Fields use dot notation (pec.processing_locations). A missing intermediate
// key, or a non-map value reached before the path is exhausted, resolves to
// absent. Absent differs from a present null value: exists is false for the
// former and true for the latter.
//
// # Operators
//
// All operators are total. Type mismatches and absent fields resolve to false,
// and the not_* operators are the exact negation of their positive form, so an
// absent field satisfies not_equals, not_any_of, not_contains and not_exists.
//
// # Escalation
//
// Escalation triggers are single numeric comparisons parsed at load time.
// EvaluateTrigger resolves the identifier in a caller-supplied context and
// fails closed when the identifier is absent, non-numeric, or the trigger did
// not parse.
//
// # Thread Safety
//
// Evaluate and EvaluateTrigger share no state and may be called concurrently
// against the same Document.
package engine
