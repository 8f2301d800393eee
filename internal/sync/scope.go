package sync

import (
	"github.com/mkuiper/recordstore/internal/record"
)

// ScopeKey derives the cache partition key for a (kind, filters) pair.
//
// Filters are canonicalized, with keys sorted and dates normalized to date
// strings, so equivalent filters collapse to the same partition no matter
// how the caller happened to order or type them. No filters means the kind
// itself is the scope.
func ScopeKey(kind string, filters map[string]any) string {
	if len(filters) == 0 {
		return kind
	}
	return kind + "-" + record.CanonicalString(filters)
}
