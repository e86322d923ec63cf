package engine

import "github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"

// Violation is a matched deny rule.
type Violation struct {
	RuleID string `json:"rule_id" yaml:"rule_id"`
	Reason string `json:"reason" yaml:"reason"`
}

// Warning is a matched warn rule.
type Warning struct {
	RuleID string `json:"rule_id" yaml:"rule_id"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result is the outcome of evaluating one metadata record.
// Compliant is true iff Violations is empty; warnings never affect it.
type Result struct {
	Compliant  bool        `json:"compliant" yaml:"compliant"`
	Violations []Violation `json:"violations" yaml:"violations"`
	Warnings   []Warning   `json:"warnings" yaml:"warnings"`
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	return &Result{
		Compliant:  r.Compliant,
		Violations: append([]Violation{}, r.Violations...),
		Warnings:   append([]Warning{}, r.Warnings...),
	}
}

// FiredTrigger records an escalation trigger that fired.
type FiredTrigger struct {
	Condition string `json:"condition" yaml:"condition"`
	Action    string `json:"action" yaml:"action"`
}

func newFiredTrigger(t card.Trigger) FiredTrigger {
	return FiredTrigger{Condition: t.Condition, Action: t.Action}
}
