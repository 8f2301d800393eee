package store

import (
	"sort"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/schema"
)

// reduce applies one event to a snapshot and returns the next snapshot.
// Total for well-formed input: merging into a kind with no prior
// collection starts from empty, unknown ids are ignored, no event panics.
func reduce(s *State, cfg schema.Schema, ev Event) *State {
	switch e := ev.(type) {
	case Merge:
		if trivialMerge(s, e) {
			return s
		}
		next := s.clone()
		applyMerge(next, cfg, e)
		return next

	case MultiMerge:
		next := s.clone()
		changed := false
		for _, m := range e.Merges {
			if trivialMerge(next, m) {
				continue
			}
			applyMerge(next, cfg, m)
			changed = true
		}
		if !changed {
			return s
		}
		return next

	case LocalMerge:
		next := s.clone()
		items := reconcile(next.collections[e.Kind], markProvisional(e.Items), cfg.StampField(e.Kind), false)
		next.setCollection(e.Kind, sortKind(cfg, e.Kind, items))
		return next

	case LocalCreate:
		next := s.clone()
		item := e.Item.Clone()
		item.Confirmed = false
		items := append(copyOf(next.collections[e.Kind]), item)
		next.setCollection(e.Kind, sortKind(cfg, e.Kind, dedupeByID(items)))
		return next

	case LocalUpdate:
		next := s.clone()
		old := next.collections[e.Kind]
		incoming := e.Item.Clone()
		if existing, ok := findByID(old, incoming.ID()); ok {
			incoming = existing.Merge(incoming)
			// Scope bookkeeping belongs to the server; a local write
			// keeps whatever scopes the record already carried.
			incoming.FetchedScopes = append([]string(nil), existing.FetchedScopes...)
		}
		incoming.Confirmed = false
		items := replaceOrAppend(old, incoming)
		next.setCollection(e.Kind, sortKind(cfg, e.Kind, items))
		return next

	case LocalDelete:
		if _, ok := s.collections[e.Kind]; !ok {
			return s
		}
		next := s.clone()
		next.setCollection(e.Kind, sortKind(cfg, e.Kind, removeIDs(next.collections[e.Kind], e.IDs)))
		return next

	case AddRecords:
		next := s.clone()
		items := copyOf(next.collections[e.Kind])
		for _, item := range markProvisional(e.Items) {
			if existing, ok := findByID(items, item.ID()); ok {
				item.FetchedScopes = append([]string(nil), existing.FetchedScopes...)
			}
			items = replaceOrAppend(items, item)
		}
		next.setCollection(e.Kind, sortKind(cfg, e.Kind, items))
		return next

	case ClearCache:
		next := s.clone()
		for _, kind := range e.Kinds {
			next.setCollection(kind, nil)
			delete(next.deletedStamps, kind)
			delete(next.actionVersions, kind)
		}
		return next

	case Reset:
		next := NewState()
		keep := func(kind string) bool {
			if len(e.Keep) > 0 {
				return containsString(e.Keep, kind)
			}
			if len(e.Discard) > 0 {
				return !containsString(e.Discard, kind)
			}
			return false
		}
		for kind, items := range s.collections {
			if keep(kind) {
				next.collections[kind] = items
				next.generations[kind] = s.generations[kind]
				if stamp, ok := s.deletedStamps[kind]; ok {
					next.deletedStamps[kind] = stamp
				}
				if v, ok := s.actionVersions[kind]; ok {
					next.actionVersions[kind] = v
				}
			} else {
				// Views over a discarded kind must still invalidate.
				next.generations[kind] = s.generations[kind] + 1
			}
		}
		return next

	default:
		return s
	}
}

// trivialMerge reports whether a merge would leave the snapshot unchanged:
// no items, no force, no deletions, and no checkpoint movement. Skipping it
// keeps empty incremental responses from invalidating downstream views.
func trivialMerge(s *State, e Merge) bool {
	return !e.Force &&
		len(e.Items) == 0 &&
		len(e.DeletedIDs) == 0 &&
		len(e.RemovedFromScopeIDs) == 0 &&
		e.DeletedStamp == nil &&
		(e.ActionVersion == 0 || e.ActionVersion == s.actionVersions[e.Kind])
}

func applyMerge(next *State, cfg schema.Schema, e Merge) {
	old := next.collections[e.Kind]

	if len(e.DeletedIDs) > 0 {
		old = removeIDs(old, e.DeletedIDs)
	}

	if len(e.RemovedFromScopeIDs) > 0 {
		old = removeFromScope(old, e.RemovedFromScopeIDs, e.ScopeKey)
	}

	var items []record.Record
	if e.Force {
		items = markConfirmed(e.Items)
	} else {
		items = reconcile(old, e.Items, cfg.StampField(e.Kind), true)
	}

	next.setCollection(e.Kind, sortKind(cfg, e.Kind, dedupeByID(items)))

	// Checkpoints only ever advance; a response without one leaves the
	// stored checkpoint alone.
	if e.DeletedStamp != nil {
		stampKind := e.StampKind
		if stampKind == "" {
			stampKind = e.Kind
		}
		next.deletedStamps[stampKind] = e.DeletedStamp
	}
	if e.ActionVersion != 0 {
		next.actionVersions[e.Kind] = e.ActionVersion
	}
}

// removeFromScope drops scopeKey from each listed record's FetchedScopes
// and removes the record entirely only when no scope remains. Records that
// never carried a scope (pushed in band) and provisional records are left
// alone: they were not fetched through this scope and may still be valid.
func removeFromScope(items []record.Record, ids []any, scopeKey string) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if !containsID(ids, r.ID()) {
			out = append(out, r)
			continue
		}
		if len(r.FetchedScopes) == 0 || !r.Confirmed {
			out = append(out, r)
			continue
		}
		stripped := r.WithoutScope(scopeKey)
		if len(stripped.FetchedScopes) == 0 {
			continue
		}
		out = append(out, stripped)
	}
	return out
}

// reconcile folds incoming into old by id: records present in both are
// combined field-by-field with incoming winning, new records are appended
// in incoming order. When confirmed is set, incoming records come out
// confirmed and FetchedScopes from both sides union if the two versions
// share the same update stamp (the same server snapshot observed through
// two scopes); on differing stamps the incoming scopes win. When confirmed
// is unset the write is local and the existing record's scopes are kept.
func reconcile(old, incoming []record.Record, stampField string, confirmed bool) []record.Record {
	out := copyOf(old)
	for _, in := range incoming {
		in = in.Clone()
		if confirmed {
			in.Confirmed = true
		}
		if existing, ok := findByID(out, in.ID()); ok {
			combined := existing.Merge(in)
			if confirmed {
				combined.Confirmed = true
				if looseStampEqual(existing.Value(stampField), in.Value(stampField)) {
					combined.FetchedScopes = unionScopes(existing.FetchedScopes, in.FetchedScopes)
				}
			} else {
				// Scope bookkeeping belongs to the server; a local write
				// keeps whatever scopes the record already carried.
				combined.FetchedScopes = append([]string(nil), existing.FetchedScopes...)
			}
			out = replaceOrAppend(out, combined)
		} else {
			out = append(out, in)
		}
	}
	return out
}

func looseStampEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

func unionScopes(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		if !containsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func sortKind(cfg schema.Schema, kind string, items []record.Record) []record.Record {
	if cfg.Kind(kind).SortField == "" {
		return items
	}
	sort.SliceStable(items, func(i, j int) bool {
		return cfg.Less(kind, items[i], items[j])
	})
	return items
}

func markProvisional(items []record.Record) []record.Record {
	out := make([]record.Record, len(items))
	for i, r := range items {
		c := r.Clone()
		c.Confirmed = false
		out[i] = c
	}
	return out
}

func markConfirmed(items []record.Record) []record.Record {
	out := make([]record.Record, len(items))
	for i, r := range items {
		c := r.Clone()
		c.Confirmed = true
		out[i] = c
	}
	return out
}

func dedupeByID(items []record.Record) []record.Record {
	seen := make(map[any]bool, len(items))
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		id := r.ID()
		if id != nil && seen[id] {
			continue
		}
		if id != nil {
			seen[id] = true
		}
		out = append(out, r)
	}
	return out
}

func findByID(items []record.Record, id any) (record.Record, bool) {
	for _, r := range items {
		if record.SameID(r.ID(), id) {
			return r, true
		}
	}
	return record.Record{}, false
}

// replaceOrAppend swaps the record with a matching id in place, preserving
// collection order, or appends when absent.
func replaceOrAppend(items []record.Record, item record.Record) []record.Record {
	out := copyOf(items)
	for i, r := range out {
		if record.SameID(r.ID(), item.ID()) {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

func removeIDs(items []record.Record, ids []any) []record.Record {
	out := make([]record.Record, 0, len(items))
	for _, r := range items {
		if !containsID(ids, r.ID()) {
			out = append(out, r)
		}
	}
	return out
}

func containsID(ids []any, id any) bool {
	for _, candidate := range ids {
		if record.SameID(candidate, id) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyOf(items []record.Record) []record.Record {
	out := make([]record.Record, len(items))
	copy(out, items)
	return out
}
