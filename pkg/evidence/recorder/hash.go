package recorder

import (
	"fmt"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// Fingerprint returns the sha256:<hex> digest of the canonical serialization
// of metadata. Records with values that cannot be serialized (channels,
// functions) fall back to their Go-syntax rendering, which also sorts map keys.
func Fingerprint(metadata map[string]any) string {
	normalized := card.Normalize(metadata)

	data, err := evidence.Canonical(normalized)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", normalized))
	}
	return evidence.Digest(data)
}
