package card

import "time"

// Effect is the outcome a rule produces when its condition matches.
type Effect string

const (
	// EffectDeny marks the capability as non-compliant.
	EffectDeny Effect = "deny"

	// EffectWarn records a warning without affecting compliance.
	EffectWarn Effect = "warn"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	return e == EffectDeny || e == EffectWarn
}

// Document is a loaded and validated policy card.
// A Document is immutable once returned by Load; callers must not modify it.
type Document struct {
	// Version is the policy card format version (policy_card_version).
	Version string `json:"policy_card_version" yaml:"policy_card_version"`

	// Name identifies the policy. It seeds the evidence hash chain.
	Name string `json:"name" yaml:"name"`

	// Scope holds free-form deployment tags.
	Scope Scope `json:"scope" yaml:"scope"`

	// Rules are evaluated in document order.
	Rules []Rule `json:"rules" yaml:"rules"`

	// Triggers are escalation triggers evaluated against runtime context.
	Triggers []Trigger `json:"escalation_triggers,omitempty" yaml:"escalation_triggers,omitempty"`

	// Detectors are monitoring detectors evaluated against report metrics.
	Detectors []Detector `json:"monitoring_detectors,omitempty" yaml:"monitoring_detectors,omitempty"`

	// KPIs are the KPI thresholds used to classify report metrics.
	KPIs []KPIThreshold `json:"kpi_thresholds,omitempty" yaml:"kpi_thresholds,omitempty"`

	// Assurance maps framework names to control references.
	Assurance AssuranceMapping `json:"assurance_mapping,omitempty" yaml:"assurance_mapping,omitempty"`

	// Source is where the document was loaded from (file path, git ref, "memory").
	Source string `json:"-" yaml:"-"`
}

// Scope describes the deployment context. No enumeration is enforced.
type Scope struct {
	RiskLevel   string   `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Geography   []string `json:"geography,omitempty" yaml:"geography,omitempty"`
	IntendedUse []string `json:"intended_use,omitempty" yaml:"intended_use,omitempty"`
}

// Rule is a named deny/warn predicate over compliance metadata.
type Rule struct {
	ID        string    `json:"id" yaml:"id"`
	Effect    Effect    `json:"effect" yaml:"effect"`
	Condition Condition `json:"condition" yaml:"condition"`
	Reason    string    `json:"reason" yaml:"reason"`
}

// Condition is a (field path, operator, operand) triple.
//
// Operand holds a normalized value whose type depends on the operator:
// a scalar (string, bool or float64) for equality and containment, a []any of
// scalars for set operators, a float64 for numeric comparisons and nil for
// existence checks.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Operand  any      `json:"operand,omitempty" yaml:"operand,omitempty"`
}

// Trigger is an escalation trigger. Expr is nil when Condition could not be
// parsed; ParseErr then holds the reason and the trigger never fires.
type Trigger struct {
	Condition string      `json:"condition" yaml:"condition"`
	Action    string      `json:"action" yaml:"action"`
	Expr      *Comparison `json:"-" yaml:"-"`
	ParseErr  error       `json:"-" yaml:"-"`
}

// Evaluable reports whether the trigger expression parsed successfully.
func (t Trigger) Evaluable() bool {
	return t.Expr != nil
}

// Detector is a monitoring detector evaluated against a report metric.
type Detector struct {
	Name      string  `json:"name" yaml:"name"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Action    string  `json:"action,omitempty" yaml:"action,omitempty"`
}

// KPIThreshold classifies an aggregate metric into health bands.
// Critical is nil when the document declares no critical_threshold.
type KPIThreshold struct {
	Metric   string   `json:"metric" yaml:"metric"`
	Target   float64  `json:"target" yaml:"target"`
	Critical *float64 `json:"critical_threshold,omitempty" yaml:"critical_threshold,omitempty"`
}

// AssuranceMapping maps a framework name to its control references.
type AssuranceMapping map[string][]string

// Clone returns a deep copy of the mapping.
func (m AssuranceMapping) Clone() AssuranceMapping {
	if m == nil {
		return nil
	}
	out := make(AssuranceMapping, len(m))
	for framework, controls := range m {
		out[framework] = append([]string(nil), controls...)
	}
	return out
}

// Provenance records where a document came from, for inclusion in reports.
type Provenance struct {
	// Source is the file path or repository location.
	Source string `json:"source" yaml:"source"`

	// Digest is the SHA-256 digest of the raw document bytes.
	Digest string `json:"digest" yaml:"digest"`

	// Revision is the git commit SHA when loaded from a repository.
	Revision string `json:"revision,omitempty" yaml:"revision,omitempty"`

	// Author is the commit author when loaded from a repository.
	Author string `json:"author,omitempty" yaml:"author,omitempty"`

	// LoadedAt is when the document was loaded.
	LoadedAt time.Time `json:"loaded_at" yaml:"loaded_at"`
}

// RuleIDs returns the rule ids in document order.
func (d *Document) RuleIDs() []string {
	ids := make([]string, len(d.Rules))
	for i, r := range d.Rules {
		ids[i] = r.ID
	}
	return ids
}
