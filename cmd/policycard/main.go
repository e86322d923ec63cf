// Policycard evaluates AI capabilities against a policy card and produces
// tamper-evident audit reports.
//
// Usage:
//
//	# Check a policy card
//	policycard validate policy.yaml
//
//	# Evaluate one capability
//	policycard evaluate --policy policy.yaml --capability search --metadata '{"locations": ["EU"]}'
//
//	# Evaluate a capability catalog and write the audit report
//	policycard audit --policy policy.yaml --catalog capabilities.yaml --output report.json
//
//	# Check a report's evidence hash chain
//	policycard verify report.json
//
//	# Query archived evidence
//	policycard evidence query --audit-id 6f1c... --compliant=false
//
//	# Run the HTTP API
//	policycard serve --config config.yaml
package main

import "os"

func main() {
	os.Exit(Execute())
}
