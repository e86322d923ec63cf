// Package card loads policy card documents into a validated, immutable model.
//
// A policy card declares the governance rules that apply to a deployment
// context: deny/warn rules over compliance metadata, escalation triggers,
// monitoring detectors, KPI thresholds and a cross-reference to external
// assurance frameworks.
//
// # Document Structure
//
//	policy_card_version: "1.0"
//	name: eu-data-residency
//	scope:
//	  risk_level: high
//	  geography: [EU]
//	  intended_use: [customer-support]
//	rules:
//	  - id: geo-restriction
//	    effect: deny
//	    condition:
//	      field: pec.processing_locations
//	      operator: not_any_of
//	      values: [EU, EEA]
//	    reason: Processing must stay inside the EU/EEA
//	escalation:
//	  triggers:
//	    - condition: "transaction_amount > 10000"
//	      action: human_review
//	kpis_thresholds:
//	  thresholds:
//	    - metric: compliance_rate
//	      target: 1.0
//	      critical_threshold: 0.95
//	assurance_mapping:
//	  iso_42001: ["A.6.2.6", "A.7.4"]
//
// # Validation
//
// Loading never partially succeeds. Every problem found in the document is
// collected into an *ErrorList and returned together; callers receive either a
// complete *Document or no document at all. Unknown operators, malformed
// operands and duplicate rule ids are load-time errors, so evaluation never has
// to deal with them.
//
// Escalation trigger expressions are parsed here, once, into a Comparison. A
// trigger whose expression does not fit the single-comparison grammar is kept
// with its parse error attached and never fires.
package card
