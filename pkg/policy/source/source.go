package source

import (
	"context"
	"time"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// Source loads a policy card and reports where it came from.
type Source interface {
	// Load reads and validates the document. Validation failures are
	// returned as *card.ErrorList.
	Load(ctx context.Context) (*card.Document, *card.Provenance, error)

	// String describes the source for logs.
	String() string
}

// Watcher is implemented by sources that can signal changes.
type Watcher interface {
	// Watch blocks until ctx is cancelled, calling onChange after each
	// detected change.
	Watch(ctx context.Context, onChange func()) error
}

func provenance(source string, data []byte) *card.Provenance {
	return &card.Provenance{
		Source:   source,
		Digest:   evidence.Digest(data),
		LoadedAt: time.Now().UTC(),
	}
}
