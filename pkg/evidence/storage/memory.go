package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

// MemoryStorage implements the Storage interface with an in-memory slice.
// Entries are kept in arrival order and never removed.
type MemoryStorage struct {
	records []*evidence.Evidence
	index   map[string]struct{}
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		index: make(map[string]struct{}),
	}
}

// Store appends an evidence entry.
func (s *MemoryStorage) Store(ctx context.Context, e *evidence.Evidence) error {
	if e == nil {
		return evidence.NewStorageError("memory", "store", fmt.Errorf("evidence is nil"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	key := entryKey(e)
	if _, dup := s.index[key]; dup {
		return evidence.NewStorageError("memory", "store",
			fmt.Errorf("%w: audit_id=%s sequence=%d", evidence.ErrDuplicateEvidence, e.AuditID, e.Sequence))
	}

	s.index[key] = struct{}{}
	s.records = append(s.records, e.Clone())
	return nil
}

// Query retrieves evidence entries matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Evidence, error) {
	if query == nil {
		query = &evidence.Query{}
	}

	s.mu.RLock()
	results := []*evidence.Evidence{}
	for _, e := range s.records {
		if matchesQuery(e, query) {
			results = append(results, e.Clone())
		}
	}
	s.mu.RUnlock()

	sortRecords(results, query.SortBy, query.SortOrder)

	start := query.Offset
	if start > len(results) {
		return []*evidence.Evidence{}, nil
	}
	results = results[start:]

	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}

	return results, nil
}

// Count returns the number of entries matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.records {
		if matchesQuery(e, query) {
			count++
		}
	}
	return count, nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	return nil
}

// Size returns the number of entries in storage (for testing).
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func entryKey(e *evidence.Evidence) string {
	return fmt.Sprintf("%s/%d", e.AuditID, e.Sequence)
}

// matchesQuery checks if an entry matches the query filters.
func matchesQuery(e *evidence.Evidence, query *evidence.Query) bool {
	if query.StartTime != nil && e.Timestamp.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && e.Timestamp.After(*query.EndTime) {
		return false
	}

	if query.AuditID != "" && e.AuditID != query.AuditID {
		return false
	}
	if query.Capability != "" && e.Capability != query.Capability {
		return false
	}
	if query.Compliant != nil && e.Result.Compliant != *query.Compliant {
		return false
	}
	if query.Escalated != nil && e.Escalated() != *query.Escalated {
		return false
	}

	if query.RuleID != "" {
		found := false
		for _, v := range e.Result.Violations {
			if v.RuleID == query.RuleID {
				found = true
			}
		}
		for _, w := range e.Result.Warnings {
			if w.RuleID == query.RuleID {
				found = true
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// sortRecords orders entries by the requested key. The default is timestamp
// ascending with sequence as tie-breaker.
func sortRecords(records []*evidence.Evidence, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc")

	less := func(a, b *evidence.Evidence) bool {
		switch sortBy {
		case "sequence":
			if a.AuditID != b.AuditID {
				return a.AuditID < b.AuditID
			}
			return a.Sequence < b.Sequence
		case "capability":
			if a.Capability != b.Capability {
				return a.Capability < b.Capability
			}
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Sequence < b.Sequence
	}

	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}
