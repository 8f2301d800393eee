// Package relation determines join cardinality and foreign-key fields
// between kinds.
//
// Resolution is a deliberate two-stage process: declared has-many schema is
// consulted first, then the foreign-key-shaped field is sniffed from sample
// records (`<kind>_id` / `<kind>_ids`). Both stages are kept because some
// relations have no declared schema at all, and a foreign-key field alone
// cannot distinguish one-to-one from one-to-many.
package relation

import (
	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/schema"
)

// Resolver answers relation questions using declared schema plus
// sample-based inference.
type Resolver struct {
	schema  schema.Schema
	inflect Inflector
}

// New creates a resolver. A nil inflector falls back to DefaultInflector.
func New(s schema.Schema, inflect Inflector) *Resolver {
	if inflect == nil {
		inflect = DefaultInflector{}
	}
	return &Resolver{schema: s, inflect: inflect}
}

// Inflector returns the resolver's inflector.
func (r *Resolver) Inflector() Inflector {
	return r.inflect
}

// IsMultiple reports whether relatedKind is a has-many of parentKind.
// parentKind is the plural kind name; relatedKind may be either form.
func (r *Resolver) IsMultiple(parentKind, relatedKind string) bool {
	return r.schema.HasMany(parentKind, r.inflect.Singular(relatedKind))
}

// FieldNameFor returns the foreign-key-shaped field on sample pointing at
// relatedKind: "<kind>_id" or "<kind>_ids" when present, "" otherwise.
func (r *Resolver) FieldNameFor(sample record.Record, relatedKind string) string {
	singular := r.inflect.Singular(relatedKind)
	if sample.Has(singular + "_id") {
		return singular + "_id"
	}
	if sample.Has(singular + "_ids") {
		return singular + "_ids"
	}
	return ""
}

// Field describes a resolved join field.
type Field struct {
	// Name is the foreign-key field, e.g. "team_id" or "tag_ids".
	Name string

	// MergeLeading is true when the field lives on the merge side (it
	// points back at the parent kind), which decides which collection
	// gets indexed during the join.
	MergeLeading bool
}

// ResolveField finds the foreign-key field linking items (parentKind) to
// mergeItems (mergeKind), using one representative record from each side.
//
// The parent side is tried first; if it carries no foreign-key-shaped
// field for the merge kind, the merge side is tried in reverse. When either
// sample set is empty the join contributes nothing, so ok is false: a
// no-op rather than an error, since a kind may have zero cached records.
func (r *Resolver) ResolveField(items, mergeItems []record.Record, parentKind, mergeKind string) (Field, bool) {
	if len(items) == 0 || len(mergeItems) == 0 {
		return Field{}, false
	}
	if name := r.FieldNameFor(items[0], mergeKind); name != "" {
		return Field{Name: name, MergeLeading: false}, true
	}
	if name := r.FieldNameFor(mergeItems[0], parentKind); name != "" {
		return Field{Name: name, MergeLeading: true}, true
	}
	return Field{}, false
}
