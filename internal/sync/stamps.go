package sync

import (
	"github.com/mkuiper/recordstore/internal/schema"
	"github.com/mkuiper/recordstore/internal/store"
)

// stampSet is what a scope knows about its own sync position: watermarks
// plus the ids needed for existence reconciliation.
type stampSet struct {
	// LastUpdated is the max (or min when paging backward) of the kind's
	// stamp field over this scope's confirmed records. Nil on cold start.
	LastUpdated any

	// LastCreated is the secondary watermark, only for kinds declaring a
	// created-stamp field.
	LastCreated any

	// CurrentIDs are the ids of this scope's records; the server uses
	// them to report records that silently left the scope.
	CurrentIDs []any

	// UnscopedIDs are ids of records known through no scope at all
	// (pushed in band or just created); they ride along so the server
	// can confirm they still exist.
	UnscopedIDs []any
}

// computeStamps derives a scope's sync position from a snapshot.
//
// Only confirmed records carrying the scope contribute to watermarks:
// optimistic records have no server stamp, and records from other scopes
// would inflate the watermark past what this scope has actually seen.
func computeStamps(st *store.State, cfg schema.Schema, kind, localKind, scopeKey string, inverted bool) stampSet {
	var out stampSet
	all := st.Collection(localKind)

	stampField := cfg.StampField(kind)
	createdField := cfg.Kind(kind).CreatedStampField

	for _, r := range all {
		if len(r.FetchedScopes) == 0 {
			out.UnscopedIDs = append(out.UnscopedIDs, r.ID())
			continue
		}
		if !r.Confirmed || !r.HasScope(scopeKey) {
			continue
		}
		out.CurrentIDs = append(out.CurrentIDs, r.ID())
		out.LastUpdated = pickStamp(out.LastUpdated, r.Value(stampField), inverted)
		if createdField != "" {
			out.LastCreated = pickStamp(out.LastCreated, r.Value(createdField), inverted)
		}
	}
	return out
}

// pickStamp keeps the running max of a watermark, or the min when paging
// in the inverted (older) direction.
func pickStamp(current, candidate any, inverted bool) any {
	if candidate == nil {
		return current
	}
	if current == nil {
		return candidate
	}
	if inverted == stampLess(candidate, current) {
		return candidate
	}
	return current
}

// stampLess orders two stamp values. Stamps are usually ISO timestamp
// strings, which order lexicographically; numeric stamps order
// numerically.
func stampLess(a, b any) bool {
	if an, ok := toFloat(a); ok {
		if bn, ok := toFloat(b); ok {
			return an < bn
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
