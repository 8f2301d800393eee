package record

import (
	"strconv"
	"time"
)

// Record is a single cached entity: a flat mapping of field name to value,
// plus the metadata the engine manages on its behalf.
//
// Fields always contains an "id" entry, unique within the record's kind.
// Values are the loosely-typed shapes a JSON decoder produces (string,
// float64, bool, nil, []any, map[string]any), plus time.Time for dates and,
// in derived views only, nested Record / []Record values attached by joins.
//
// FetchedScopes lists the sync scopes through which this record is currently
// known to be valid. It grows only on successful sync responses and shrinks
// only when the server reports the record removed from a scope or destroyed.
//
// Confirmed is false for optimistic local writes that have not yet been
// acknowledged by a sync response. Unconfirmed records never contribute to
// stamp computation and are never evicted by scope-removal bookkeeping.
type Record struct {
	Fields        map[string]any
	FetchedScopes []string
	Confirmed     bool
}

// New creates a confirmed record from a field map. The map is not copied.
func New(fields map[string]any) Record {
	return Record{Fields: fields, Confirmed: true}
}

// ID returns the record's normalized id: int64 for numeric ids, string
// otherwise, nil when the record has no id field.
func (r Record) ID() any {
	return NormalizeID(r.Fields["id"])
}

// Value returns the named field's value, nil when absent.
func (r Record) Value(field string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

// Has reports whether the field is present, even with a nil value.
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// HasScope reports whether scope is in FetchedScopes.
func (r Record) HasScope(scope string) bool {
	for _, s := range r.FetchedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// WithScope returns a copy of the record with scope added to FetchedScopes.
// Adding an already-present scope is a no-op copy.
func (r Record) WithScope(scope string) Record {
	out := r.Clone()
	if !out.HasScope(scope) {
		out.FetchedScopes = append(out.FetchedScopes, scope)
	}
	return out
}

// WithoutScope returns a copy of the record with scope removed.
func (r Record) WithoutScope(scope string) Record {
	out := r.Clone()
	kept := out.FetchedScopes[:0:0]
	for _, s := range out.FetchedScopes {
		if s != scope {
			kept = append(kept, s)
		}
	}
	out.FetchedScopes = kept
	return out
}

// Clone returns a copy with a fresh top-level field map and scope slice.
// Nested values are shared; reducers treat records as immutable, so a
// shallow copy is sufficient for snapshot isolation.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	scopes := make([]string, len(r.FetchedScopes))
	copy(scopes, r.FetchedScopes)
	return Record{Fields: fields, FetchedScopes: scopes, Confirmed: r.Confirmed}
}

// Merge returns a field-by-field combination of r and incoming, incoming
// winning per field. Metadata is taken from incoming.
func (r Record) Merge(incoming Record) Record {
	out := r.Clone()
	for k, v := range incoming.Fields {
		out.Fields[k] = v
	}
	out.Confirmed = incoming.Confirmed
	out.FetchedScopes = append([]string(nil), incoming.FetchedScopes...)
	return out
}

// NormalizeID canonicalizes an id value so that ids compare reliably across
// JSON decoding variations: integral numbers (and numeric strings) become
// int64, everything else stays a string. Non-id-shaped values pass through.
func NormalizeID(v any) any {
	switch id := v.(type) {
	case nil:
		return nil
	case int64:
		return id
	case int:
		return int64(id)
	case float64:
		if id == float64(int64(id)) {
			return int64(id)
		}
		return id
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
		return id
	default:
		return v
	}
}

// SameID reports whether two id values denote the same id after
// normalization.
func SameID(a, b any) bool {
	return NormalizeID(a) == NormalizeID(b)
}

// DateLayout is the wire format for dates throughout the engine. Servers
// send dates as strings in this layout and range filters are compared
// against it.
const DateLayout = "2006-01-02"

// FormatDate renders a time as a wire-format date string.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
