// Package query evaluates whether record field values satisfy query
// expressions: equality, set overlap, range comparisons, and id lists.
//
// Host callers build queries from loosely-typed maps (the shapes a JSON
// decoder produces). The meaning of a loose value depends on its runtime
// shape (array vs. scalar vs. range), so conversion into the tagged Expr
// form happens exactly once, at the API boundary, in ExprFor. Everything
// past that boundary works on the sealed expression types.
package query

import (
	"reflect"
	"strconv"
	"time"

	"github.com/mkuiper/recordstore/internal/record"
)

// Expr is a sealed query expression.
//
// Only Equals, AnyOf, Overlaps, and Contains implement it. The marker
// method pattern prevents external implementations and enables exhaustive
// type switches in the evaluator.
type Expr interface {
	exprNode()
}

// Equals matches a field by value equality.
//
// With Exact set, both sides are compared literally: no numeric coercion,
// no array or range interpretation. Otherwise values are canonicalized
// first (dates to date strings, numeric-looking strings to numbers), and a
// field that is itself a collection matches when it contains the value.
type Equals struct {
	Value any
	Exact bool
}

func (Equals) exprNode() {}

// AnyOf matches when the field intersects the value set: non-empty
// intersection when the field is a collection, containment when it is a
// scalar.
type AnyOf struct {
	Values []any
}

func (AnyOf) exprNode() {}

// Overlaps matches date-shaped fields against a range: two ranges match
// when they overlap, a plain date-string field matches when the range
// contains it.
type Overlaps struct {
	Range Range
}

func (Overlaps) exprNode() {}

// Contains matches when the field is a collection intersecting Values.
// Unlike AnyOf, a scalar field never matches: this is the membership-style
// query ("record.tag_ids includes any of query.tag_ids").
type Contains struct {
	Values []any
}

func (Contains) exprNode() {}

// ExprFor converts a loose host value into its tagged expression form.
//
// Shape rules, in order: exact forces literal equality; a range-shaped
// value (see RangeFrom) becomes Overlaps; a collection becomes AnyOf;
// anything else becomes Equals.
func ExprFor(v any, exact bool) Expr {
	if exact {
		return Equals{Value: v, Exact: true}
	}
	if r, ok := RangeFrom(v); ok {
		return Overlaps{Range: r}
	}
	if vals, ok := asSlice(v); ok {
		return AnyOf{Values: vals}
	}
	return Equals{Value: v}
}

// Match evaluates an expression against a single field value.
func Match(e Expr, fieldValue any) bool {
	switch expr := e.(type) {
	case Equals:
		if expr.Exact {
			return reflect.DeepEqual(expr.Value, fieldValue)
		}
		if r, ok := RangeFrom(fieldValue); ok {
			return matchRange(Range{}, r, expr.Value)
		}
		if fieldVals, ok := asSlice(fieldValue); ok {
			return containsValue(fieldVals, expr.Value)
		}
		return looseEqual(expr.Value, fieldValue)
	case AnyOf:
		if _, ok := RangeFrom(fieldValue); ok {
			// A range field never matches a plain value set.
			return false
		}
		if fieldVals, ok := asSlice(fieldValue); ok {
			return intersects(expr.Values, fieldVals)
		}
		return containsValue(expr.Values, fieldValue)
	case Overlaps:
		if r, ok := RangeFrom(fieldValue); ok {
			return expr.Range.Overlaps(r)
		}
		return matchRange(expr.Range, Range{}, fieldValue)
	case Contains:
		fieldVals, ok := asSlice(fieldValue)
		if !ok {
			return false
		}
		return intersects(expr.Values, fieldVals)
	default:
		return false
	}
}

// matchRange handles the range-vs-plain-value cases. Exactly one of qr/fr
// is a real range; the plain side must be a date string.
func matchRange(qr, fr Range, plain any) bool {
	r := qr
	if r.IsZero() {
		r = fr
	}
	s, ok := canonValue(plain).(string)
	if !ok {
		return false
	}
	if r.SingleDay() {
		// Tolerate half-open range representations: a single-day range
		// matches when the string equals either boundary.
		return s == record.FormatDate(r.Start) || s == record.FormatDate(r.End)
	}
	return r.ContainsDate(s)
}

// canonValue canonicalizes a scalar for comparison: dates become wire-format
// date strings, numeric values and numeric-looking strings become float64.
// Collections and maps pass through untouched.
func canonValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return record.FormatDate(val)
	case string:
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return v
	}
}

func looseEqual(a, b any) bool {
	return reflect.DeepEqual(canonValue(a), canonValue(b))
}

func intersects(a, b []any) bool {
	for _, x := range a {
		for _, y := range b {
			if looseEqual(x, y) {
				return true
			}
		}
	}
	return false
}

func containsValue(vals []any, v any) bool {
	for _, x := range vals {
		if looseEqual(x, v) {
			return true
		}
	}
	return false
}

func asSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
