package join

import (
	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/relation"
)

// Engine attaches related records to parent records. Stateless apart from
// the resolver; output is always derived data, inputs are never mutated.
type Engine struct {
	resolver *relation.Resolver
}

// NewEngine creates a join engine over the given resolver.
func NewEngine(r *relation.Resolver) *Engine {
	return &Engine{resolver: r}
}

// Join attaches mergeItems (of mergeKind) to items (of parentKind).
//
// Singular relations attach at most one record under the singular key;
// plural relations attach the full matching list (possibly empty) under the
// plural key. The side carrying the foreign-key field is detected from the
// actual samples, which makes the join resilient to sparse data; when no
// foreign key is found on either side the items are returned unchanged.
func (e *Engine) Join(items, mergeItems []record.Record, parentKind, mergeKind string) []record.Record {
	field, ok := e.resolver.ResolveField(items, mergeItems, parentKind, mergeKind)
	if !ok {
		return items
	}

	multiple := e.resolver.IsMultiple(parentKind, mergeKind)
	inflect := e.resolver.Inflector()
	var attachKey string
	if multiple {
		attachKey = inflect.Plural(mergeKind)
	} else {
		attachKey = inflect.Singular(mergeKind)
	}

	// Index mergeItems once so each item's lookup is O(ids), not O(m).
	// With the foreign key on the merge side the index is keyed by that
	// field's value(s); otherwise by merge-record id.
	index := make(map[any][]record.Record, len(mergeItems))
	for _, m := range mergeItems {
		var keys []any
		if field.MergeLeading {
			keys = idList(m.Value(field.Name))
		} else {
			keys = []any{m.ID()}
		}
		for _, k := range keys {
			index[k] = append(index[k], m)
		}
	}

	out := make([]record.Record, len(items))
	for i, item := range items {
		var lookups []any
		if field.MergeLeading {
			lookups = []any{item.ID()}
		} else {
			lookups = idList(item.Value(field.Name))
		}

		var matches []record.Record
		seen := map[any]bool{}
		for _, k := range lookups {
			for _, m := range index[k] {
				id := m.ID()
				if seen[id] {
					continue
				}
				seen[id] = true
				matches = append(matches, m)
			}
		}

		joined := item.Clone()
		if multiple {
			if matches == nil {
				matches = []record.Record{}
			}
			joined.Fields[attachKey] = matches
		} else if len(matches) > 0 {
			joined.Fields[attachKey] = matches[0]
		}
		out[i] = joined
	}
	return out
}

// JoinTree runs a normalized join tree against per-kind collections. For
// each node, the node's own children are joined into its records first
// (the join-through composition), then the result is joined into the
// parent: joining category into employment_type into users nests category
// inside employment_type inside each user, to arbitrary depth.
func (e *Engine) JoinTree(collections map[string][]record.Record, kind string, nodes []Node) []record.Record {
	items := collections[kind]
	for _, n := range nodes {
		mergeItems := collections[n.Key]
		if len(n.Children) > 0 {
			mergeItems = e.JoinTree(collections, n.Key, n.Children)
		}
		items = e.Join(items, mergeItems, kind, n.Key)
	}
	return items
}

// idList normalizes a foreign-key value into a list of comparable ids.
// Scalar values become a single-element list; nil becomes empty.
func idList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(val))
		for _, id := range val {
			out = append(out, record.NormalizeID(id))
		}
		return out
	case []int64:
		out := make([]any, 0, len(val))
		for _, id := range val {
			out = append(out, record.NormalizeID(id))
		}
		return out
	case []float64:
		out := make([]any, 0, len(val))
		for _, id := range val {
			out = append(out, record.NormalizeID(id))
		}
		return out
	default:
		return []any{record.NormalizeID(v)}
	}
}
