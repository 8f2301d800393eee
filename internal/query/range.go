package query

import (
	"time"

	"github.com/mkuiper/recordstore/internal/record"
)

// Range is a date range with inclusive boundaries.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a range from two times.
func NewRange(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// RangeFrom recognizes a range in a loose host value.
//
// A value is a range only when its start boundary is itself date-typed: a
// Range, or a map with a time.Time under "start". An object that merely has
// start/end string fields is not a range; that distinction matters because
// plenty of records carry their own start/end fields.
func RangeFrom(v any) (Range, bool) {
	switch val := v.(type) {
	case Range:
		return val, !val.IsZero()
	case *Range:
		if val == nil {
			return Range{}, false
		}
		return *val, !val.IsZero()
	case map[string]any:
		start, ok := val["start"].(time.Time)
		if !ok {
			return Range{}, false
		}
		end, _ := val["end"].(time.Time)
		return Range{Start: start, End: end}, true
	default:
		return Range{}, false
	}
}

// IsZero reports whether the range has no start boundary.
func (r Range) IsZero() bool {
	return r.Start.IsZero()
}

// CanonicalValue renders the range for canonical JSON identity: an object
// with wire-format date boundaries, open ends as null.
func (r Range) CanonicalValue() any {
	out := map[string]any{"start": nil, "end": nil}
	if !r.Start.IsZero() {
		out["start"] = record.FormatDate(r.Start)
	}
	if !r.End.IsZero() {
		out["end"] = record.FormatDate(r.End)
	}
	return out
}

// SingleDay reports whether start and end fall on the same calendar day.
func (r Range) SingleDay() bool {
	return record.FormatDate(r.Start) == record.FormatDate(r.End)
}

// Overlaps reports whether two ranges share any day. Overlap, not
// containment: a range extending past the other on both sides still
// matches.
func (r Range) Overlaps(o Range) bool {
	return !r.startDay().After(o.endDay()) && !o.startDay().After(r.endDay())
}

// ContainsDate reports whether the wire-format date string falls inside
// the range, boundaries included. Date strings sort lexicographically, so
// string comparison against the formatted boundaries suffices.
func (r Range) ContainsDate(s string) bool {
	day := dayPart(s)
	return day >= record.FormatDate(r.Start) && day <= record.FormatDate(r.End)
}

func (r Range) startDay() time.Time {
	return truncateDay(r.Start)
}

func (r Range) endDay() time.Time {
	if r.End.IsZero() {
		return truncateDay(r.Start)
	}
	return truncateDay(r.End)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayPart trims a timestamp string down to its date prefix, so full
// timestamps compare at day granularity the way date strings do.
func dayPart(s string) string {
	if len(s) > len(record.DateLayout) {
		return s[:len(record.DateLayout)]
	}
	return s
}
