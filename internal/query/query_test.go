package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mkuiper/recordstore/internal/record"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rec(fields map[string]any) record.Record {
	return record.New(fields)
}

func TestMatch_ScalarEquality(t *testing.T) {
	assert.True(t, Match(ExprFor("a", false), "a"))
	assert.False(t, Match(ExprFor("a", false), "b"))
}

func TestMatch_NumericCoercionBothDirections(t *testing.T) {
	assert.True(t, Match(ExprFor("5", false), float64(5)))
	assert.True(t, Match(ExprFor(float64(5), false), "5"))
	assert.True(t, Match(ExprFor(5, false), int64(5)))
	assert.False(t, Match(ExprFor("5a", false), float64(5)))
}

func TestMatch_ExactDisablesCoercion(t *testing.T) {
	assert.False(t, Match(ExprFor("5", true), float64(5)))
	assert.True(t, Match(ExprFor("5", true), "5"))
	// Exact also disables array interpretation.
	assert.False(t, Match(ExprFor([]any{1, 2}, true), []any{2}))
	assert.True(t, Match(ExprFor([]any{1, 2}, true), []any{1, 2}))
}

func TestMatch_ArrayArrayIntersection(t *testing.T) {
	assert.True(t, Match(ExprFor([]any{float64(2)}, false), []any{float64(1), float64(2), float64(3)}))
	assert.False(t, Match(ExprFor([]any{float64(9)}, false), []any{float64(1), float64(2)}))
}

func TestMatch_ArrayScalarContainment(t *testing.T) {
	// Query array, scalar field.
	assert.True(t, Match(ExprFor([]any{1, 2, 3}, false), float64(2)))
	// Scalar query, array field.
	assert.True(t, Match(ExprFor(2, false), []any{float64(1), float64(2)}))
	assert.False(t, Match(ExprFor(9, false), []any{float64(1), float64(2)}))
}

func TestMatch_RangeContainsDateString(t *testing.T) {
	r := NewRange(day(2024, 3, 1), day(2024, 3, 31))
	assert.True(t, Match(ExprFor(r, false), "2024-03-10"))
	assert.False(t, Match(ExprFor(r, false), "2024-04-01"))
}

func TestMatch_RangeSingleDayMatchesEitherBoundary(t *testing.T) {
	r := NewRange(day(2024, 3, 10), day(2024, 3, 10))
	assert.True(t, Match(ExprFor(r, false), "2024-03-10"))
	assert.False(t, Match(ExprFor(r, false), "2024-03-11"))
}

func TestMatch_RangeRangeUsesOverlapNotContainment(t *testing.T) {
	q := NewRange(day(2024, 3, 5), day(2024, 3, 10))
	field := NewRange(day(2024, 3, 1), day(2024, 3, 31))
	// The field range is not contained in the query range, but they overlap.
	assert.True(t, Match(ExprFor(q, false), field))

	disjoint := NewRange(day(2024, 5, 1), day(2024, 5, 2))
	assert.False(t, Match(ExprFor(q, false), disjoint))
}

func TestRangeFrom_RequiresDateTypedStart(t *testing.T) {
	_, ok := RangeFrom(map[string]any{"start": "2024-03-01", "end": "2024-03-31"})
	assert.False(t, ok, "object-shaped values with string boundaries are not ranges")

	r, ok := RangeFrom(map[string]any{"start": day(2024, 3, 1), "end": day(2024, 3, 31)})
	assert.True(t, ok)
	assert.Equal(t, day(2024, 3, 1), r.Start)
}

func TestQuery_MatchesAllKeys(t *testing.T) {
	r := rec(map[string]any{"id": 1, "team_id": float64(5), "active": true})
	q := FromMap(map[string]any{"team_id": 5, "active": true}, Options{})
	assert.True(t, q.Matches(r))

	q2 := FromMap(map[string]any{"team_id": 5, "active": false}, Options{})
	assert.False(t, q2.Matches(r), "every key must independently match")
	assert.True(t, q2.MatchesNot(r))
}

func TestQuery_TagIDsIntersection(t *testing.T) {
	r := rec(map[string]any{"tag_ids": []any{float64(1), float64(2), float64(3)}})
	q := FromMap(map[string]any{"tag_ids": []any{2}}, Options{})
	assert.True(t, q.Matches(r))
}

func TestQuery_DateRangeField(t *testing.T) {
	r := rec(map[string]any{"date": "2024-03-10"})
	q := FromMap(map[string]any{
		"date": map[string]any{"start": day(2024, 3, 1), "end": day(2024, 3, 31)},
	}, Options{})
	assert.True(t, q.Matches(r))
}

func TestIncludesFromMap_RequiresArrayField(t *testing.T) {
	q := IncludesFromMap(map[string]any{"tag_ids": []any{2}})
	assert.True(t, q.Matches(rec(map[string]any{"tag_ids": []any{float64(2), float64(4)}})))
	assert.False(t, q.Matches(rec(map[string]any{"tag_ids": float64(2)})), "scalar field never matches a membership query")
	assert.False(t, q.Matches(rec(map[string]any{})))
}

func TestByID_Shorthand(t *testing.T) {
	items := []record.Record{
		rec(map[string]any{"id": float64(1)}),
		rec(map[string]any{"id": float64(2)}),
	}
	found, ok := ByID("2").Find(items)
	assert.True(t, ok)
	assert.Equal(t, int64(2), found.ID())

	_, ok = ByID(9).Find(items)
	assert.False(t, ok)
}

func TestByIDs_List(t *testing.T) {
	items := []record.Record{
		rec(map[string]any{"id": float64(1)}),
		rec(map[string]any{"id": float64(2)}),
		rec(map[string]any{"id": float64(3)}),
	}
	got := ByIDs([]any{1, 3}).Filter(items)
	assert.Len(t, got, 2)
}

func TestFilterByDate_Window(t *testing.T) {
	items := []record.Record{
		rec(map[string]any{"id": 1, "date": "2024-03-01"}),
		rec(map[string]any{"id": 2, "date": "2024-03-15"}),
		rec(map[string]any{"id": 3, "date": "2024-04-01"}),
	}
	got := FilterByDate(items, "date", "2024-03-01", "2024-03-31")
	assert.Len(t, got, 2)

	open := FilterByDate(items, "date", "2024-03-10", "")
	assert.Len(t, open, 2)
}
