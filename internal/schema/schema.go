// Package schema holds the per-kind configuration the engine is
// constructed with: declared has-many relations, stamp fields, sort order,
// and default join sets. Configuration is an explicit value passed to each
// component, never module-level state.
package schema

import (
	"fmt"

	"github.com/mkuiper/recordstore/internal/record"
)

// DefaultStampField is the timestamp field used for incremental-sync
// watermarks when a kind declares none.
const DefaultStampField = "updated_at"

// Kind is the configuration of one entity kind.
type Kind struct {
	// Name is the kind's plural name, e.g. "users".
	Name string

	// HasMany lists the kinds (singular form) this kind has many of.
	// Used to disambiguate join cardinality when the foreign-key field
	// alone is ambiguous.
	HasMany []string

	// StampField overrides the update watermark field.
	StampField string

	// CreatedStampField, when set, adds a secondary created watermark to
	// sync requests.
	CreatedStampField string

	// SortField orders the kind's collection after every store write.
	// Empty means insertion order.
	SortField string
	SortDesc  bool

	// DefaultJoins is merged into the join set of every view of this kind.
	DefaultJoins []string
}

// Schema maps kind name to configuration. A nil Schema is valid and means
// every kind runs on defaults.
type Schema map[string]Kind

// Kind returns the configuration for a kind, zero-valued when undeclared.
func (s Schema) Kind(name string) Kind {
	if s == nil {
		return Kind{Name: name}
	}
	k, ok := s[name]
	if !ok {
		return Kind{Name: name}
	}
	return k
}

// StampField returns the kind's update watermark field.
func (s Schema) StampField(kind string) string {
	if f := s.Kind(kind).StampField; f != "" {
		return f
	}
	return DefaultStampField
}

// HasMany reports whether parent declares related (singular) as a has-many.
func (s Schema) HasMany(parent, related string) bool {
	for _, r := range s.Kind(parent).HasMany {
		if r == related {
			return true
		}
	}
	return false
}

// Less orders two records of a kind per its SortField. Records without the
// field sort last. Used by the store after every write so that view output
// is stable.
func (s Schema) Less(kind string, a, b record.Record) bool {
	cfg := s.Kind(kind)
	if cfg.SortField == "" {
		return false
	}
	av, aok := compareKey(a.Value(cfg.SortField))
	bv, bok := compareKey(b.Value(cfg.SortField))
	if !aok {
		return false
	}
	if !bok {
		return true
	}
	if cfg.SortDesc {
		return bv < av
	}
	return av < bv
}

// compareKey flattens a sortable value to a string key. Numbers are padded
// so numeric and lexicographic order agree for non-negative values.
func compareKey(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case float64:
		return fmt.Sprintf("%020.6f", val), true
	case int:
		return fmt.Sprintf("%020.6f", float64(val)), true
	case int64:
		return fmt.Sprintf("%020.6f", float64(val)), true
	default:
		return "", false
	}
}
