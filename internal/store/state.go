// Package store holds the process-wide normalized cache: per-kind record
// collections, deletion checkpoints, and schema-version counters, mutated
// exclusively through typed events applied one at a time by a single
// logical writer. Every mutation produces a fresh immutable snapshot, so
// readers never see a torn state.
package store

import (
	"github.com/mkuiper/recordstore/internal/record"
)

// State is one immutable snapshot of the cache. Accessors return internal
// slices and maps directly; callers must treat them as read-only.
type State struct {
	collections    map[string][]record.Record
	deletedStamps  map[string]any
	actionVersions map[string]int64
	generations    map[string]uint64
}

// NewState returns the empty initial state.
func NewState() *State {
	return &State{
		collections:    map[string][]record.Record{},
		deletedStamps:  map[string]any{},
		actionVersions: map[string]int64{},
		generations:    map[string]uint64{},
	}
}

// Collection returns the kind's records. A kind never merged into is an
// empty collection, not an error.
func (s *State) Collection(kind string) []record.Record {
	return s.collections[kind]
}

// Collections returns the named collections as a map, for feeding a join.
func (s *State) Collections(kinds []string) map[string][]record.Record {
	out := make(map[string][]record.Record, len(kinds))
	for _, k := range kinds {
		out[k] = s.collections[k]
	}
	return out
}

// Kinds returns every kind present in the snapshot.
func (s *State) Kinds() []string {
	out := make([]string, 0, len(s.collections))
	for k := range s.collections {
		out = append(out, k)
	}
	return out
}

// DeletedStamp returns the kind's hard-delete checkpoint, nil when unset.
func (s *State) DeletedStamp(kind string) any {
	return s.deletedStamps[kind]
}

// ActionVersion returns the kind's server-side schema/shape version
// counter, zero when unset.
func (s *State) ActionVersion(kind string) int64 {
	return s.actionVersions[kind]
}

// Generation returns the kind's write counter. It increments on every
// event that touches the kind's collection; memo caches use it for O(1)
// invalidation checks instead of deep-comparing collections.
func (s *State) Generation(kind string) uint64 {
	return s.generations[kind]
}

// clone copies the snapshot's maps (not the record slices, which are never
// mutated in place) so a reducer can build the next snapshot.
func (s *State) clone() *State {
	next := &State{
		collections:    make(map[string][]record.Record, len(s.collections)),
		deletedStamps:  make(map[string]any, len(s.deletedStamps)),
		actionVersions: make(map[string]int64, len(s.actionVersions)),
		generations:    make(map[string]uint64, len(s.generations)),
	}
	for k, v := range s.collections {
		next.collections[k] = v
	}
	for k, v := range s.deletedStamps {
		next.deletedStamps[k] = v
	}
	for k, v := range s.actionVersions {
		next.actionVersions[k] = v
	}
	for k, v := range s.generations {
		next.generations[k] = v
	}
	return next
}

func (s *State) setCollection(kind string, items []record.Record) {
	s.collections[kind] = items
	s.generations[kind] = s.generations[kind] + 1
}
