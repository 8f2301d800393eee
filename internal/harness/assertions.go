package harness

import (
	"fmt"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/store"
)

// applyAssertions checks every assertion against the final state,
// collecting all failures into one error.
func applyAssertions(scenario *Scenario, st *store.State) error {
	var failures []string
	for i, a := range scenario.Assertions {
		if err := applyAssertion(a, st); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i+1, a.Type, err))
		}
	}
	if len(failures) > 0 {
		msg := failures[0]
		for _, f := range failures[1:] {
			msg += "; " + f
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func applyAssertion(a Assertion, st *store.State) error {
	col := st.Collection(a.Kind)
	switch a.Type {
	case AssertCount:
		if len(col) != a.Count {
			return fmt.Errorf("kind %s holds %d record(s), want %d", a.Kind, len(col), a.Count)
		}
		return nil

	case AssertRecord:
		r, ok := findRecord(col, a.ID)
		if !ok {
			return fmt.Errorf("no %s record with id %v", a.Kind, a.ID)
		}
		for field, want := range a.Expect {
			have := r.Value(field)
			if !looseEqual(have, want) {
				return fmt.Errorf("record %v field %s = %v, want %v", a.ID, field, have, want)
			}
		}
		return nil

	case AssertAbsent:
		if _, ok := findRecord(col, a.ID); ok {
			return fmt.Errorf("%s record with id %v should not exist", a.Kind, a.ID)
		}
		return nil

	case AssertScope:
		r, ok := findRecord(col, a.ID)
		if !ok {
			return fmt.Errorf("no %s record with id %v", a.Kind, a.ID)
		}
		if !r.HasScope(a.Scope) {
			return fmt.Errorf("record %v lacks scope %q (has %v)", a.ID, a.Scope, r.FetchedScopes)
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func findRecord(col []record.Record, id any) (record.Record, bool) {
	for _, r := range col {
		if record.SameID(r.ID(), id) {
			return r, true
		}
	}
	return record.Record{}, false
}

// looseEqual compares a cached value against a YAML-scripted expectation
// by canonical rendering, so 1 and 1.0 and int64(1) agree.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return record.CanonicalString(a) == record.CanonicalString(b)
}
