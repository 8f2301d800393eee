package query

import (
	"github.com/mkuiper/recordstore/internal/record"
)

// Query maps field names to expressions. A record matches when every
// field's expression independently matches (logical AND).
type Query map[string]Expr

// Options tune the loose-value conversion at the API boundary.
type Options struct {
	// Exact disables numeric coercion and the array/range interpretation,
	// forcing literal equality per field.
	Exact bool
}

// FromMap converts a loose field→value map into a Query.
func FromMap(m map[string]any, opts Options) Query {
	q := make(Query, len(m))
	for k, v := range m {
		q[k] = ExprFor(v, opts.Exact)
	}
	return q
}

// IncludesFromMap converts a loose map into a membership query: per field,
// the record's own collection must intersect the query's value set.
func IncludesFromMap(m map[string]any) Query {
	q := make(Query, len(m))
	for k, v := range m {
		vals, ok := asSlice(v)
		if !ok {
			vals = []any{v}
		}
		q[k] = Contains{Values: vals}
	}
	return q
}

// ByID is the degenerate single-record query {id: value}.
func ByID(v any) Query {
	return Query{"id": Equals{Value: record.NormalizeID(v)}}
}

// ByIDs matches records whose id is in the list.
func ByIDs(ids []any) Query {
	norm := make([]any, len(ids))
	for i, id := range ids {
		norm[i] = record.NormalizeID(id)
	}
	return Query{"id": AnyOf{Values: norm}}
}

// Matches reports whether every expression in the query matches the record.
// An empty query matches everything.
func (q Query) Matches(r record.Record) bool {
	for field, expr := range q {
		if !Match(expr, r.Value(field)) {
			return false
		}
	}
	return true
}

// MatchesNot is the whole-record negation of Matches.
func (q Query) MatchesNot(r record.Record) bool {
	return !q.Matches(r)
}

// Filter returns the records matching the query, preserving order.
func (q Query) Filter(items []record.Record) []record.Record {
	var out []record.Record
	for _, r := range items {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterNot returns the records that do not match the query.
func (q Query) FilterNot(items []record.Record) []record.Record {
	var out []record.Record
	for _, r := range items {
		if !q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first matching record. The second result is false when
// nothing matches.
func (q Query) Find(items []record.Record) (record.Record, bool) {
	for _, r := range items {
		if q.Matches(r) {
			return r, true
		}
	}
	return record.Record{}, false
}

// FilterByDate keeps records whose date-string field falls inside the
// given boundaries. Empty boundary strings are open ends.
func FilterByDate(items []record.Record, field, start, end string) []record.Record {
	if field == "" {
		field = "date"
	}
	var out []record.Record
	for _, r := range items {
		s, ok := canonValue(r.Value(field)).(string)
		if !ok {
			continue
		}
		day := dayPart(s)
		if start != "" && day < start {
			continue
		}
		if end != "" && day > end {
			continue
		}
		out = append(out, r)
	}
	return out
}
