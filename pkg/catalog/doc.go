// Package catalog reads capability catalogs: the list of capabilities a
// discovery step found, each with the compliance metadata to evaluate and an
// optional runtime context for escalation triggers.
//
// A catalog is YAML or JSON, either a bare list or a mapping with a
// "capabilities" key:
//
//	capabilities:
//	  - name: search
//	    description: web search
//	    metadata:
//	      data_residency: EU
//	    context:
//	      risk_score: 0.4
//
// Load reports every problem at once as a *card.ErrorList.
package catalog
