package source

import (
	"context"
	"sync"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// MemorySource serves a document held in memory.
type MemorySource struct {
	mu   sync.RWMutex
	name string
	data []byte
}

// NewMemorySource creates a source over raw YAML or JSON bytes.
func NewMemorySource(name string, data []byte) *MemorySource {
	return &MemorySource{name: name, data: append([]byte(nil), data...)}
}

// Set replaces the document bytes.
func (s *MemorySource) Set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
}

// Load implements Source.
func (s *MemorySource) Load(ctx context.Context) (*card.Document, *card.Provenance, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()

	doc, err := card.LoadBytes(data, s.String())
	if err != nil {
		return nil, nil, err
	}
	return doc, provenance(s.String(), data), nil
}

func (s *MemorySource) String() string {
	return "memory:" + s.name
}
