package engine

import "github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"

// Match resolves cond.Field in record and applies the condition's operator.
func Match(cond card.Condition, record map[string]any) bool {
	value, present := Resolve(record, cond.Field)
	return Apply(cond.Operator, value, present, cond.Operand)
}

// Evaluate checks every rule of doc against metadata in document order.
// capability names the subject being evaluated and does not influence the result.
func Evaluate(doc *card.Document, metadata map[string]any, capability string) *Result {
	result := &Result{
		Violations: []Violation{},
		Warnings:   []Warning{},
	}
	if doc == nil {
		result.Compliant = true
		return result
	}

	for _, rule := range doc.Rules {
		if !Match(rule.Condition, metadata) {
			continue
		}
		switch rule.Effect {
		case card.EffectDeny:
			result.Violations = append(result.Violations, Violation{RuleID: rule.ID, Reason: rule.Reason})
		case card.EffectWarn:
			result.Warnings = append(result.Warnings, Warning{RuleID: rule.ID, Reason: rule.Reason})
		}
	}

	result.Compliant = len(result.Violations) == 0
	return result
}
