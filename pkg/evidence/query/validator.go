package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

const (
	// DefaultLimit is the page size used when a query names none.
	DefaultLimit = 100

	// MaxLimit caps a single page of evidence.
	MaxLimit = 10000
)

// SortFields lists the keys an archive can order evidence by.
var SortFields = []string{"timestamp", "sequence", "capability"}

// Validate checks every query parameter and reports all problems at once
// in a single *evidence.QueryError.
func Validate(q *evidence.Query) error {
	if q == nil {
		return evidence.NewQueryError(nil, errors.New("query is nil"))
	}

	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch {
	case q.Limit < 0:
		addf("limit must be >= 0, got %d", q.Limit)
	case q.Limit > MaxLimit:
		addf("limit must be <= %d, got %d", MaxLimit, q.Limit)
	}
	if q.Offset < 0 {
		addf("offset must be >= 0, got %d", q.Offset)
	}
	if q.SortBy != "" && !slices.Contains(SortFields, q.SortBy) {
		addf("invalid sort field %q (one of %s)", q.SortBy, strings.Join(SortFields, ", "))
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		addf("invalid sort order %q (asc or desc)", q.SortOrder)
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		addf("start_time must be before end_time")
	}
	// Archives match rule ids against a comma-delimited column.
	if strings.ContainsAny(q.RuleID, ", ") {
		addf("rule_id must be a single id, got %q", q.RuleID)
	}

	if len(problems) == 0 {
		return nil
	}
	return evidence.NewQueryError(q, errors.New(strings.Join(problems, "; ")))
}

// ApplyDefaults fills the page size and ordering a query left empty:
// DefaultLimit entries, oldest first.
func ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = SortFields[0]
	}
	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}
}
