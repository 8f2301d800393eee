package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuiper/recordstore/internal/query"
	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/schema"
	"github.com/mkuiper/recordstore/internal/store"
	"github.com/mkuiper/recordstore/internal/testutil"
)

func viewSchema() schema.Schema {
	return schema.Schema{
		"users":  {Name: "users", HasMany: []string{"shift"}},
		"teams":  {Name: "teams"},
		"shifts": {Name: "shifts"},
		"tasks":  {Name: "tasks", DefaultJoins: []string{"users"}},
	}
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(viewSchema(), nil)
	st.Dispatch(store.AddRecords{Kind: "users", Items: []record.Record{
		record.New(map[string]any{"id": 1, "name": "ada", "team_id": 7, "role": "admin"}),
		record.New(map[string]any{"id": 2, "name": "grace", "team_id": 8, "role": "member"}),
	}})
	st.Dispatch(store.AddRecords{Kind: "teams", Items: []record.Record{
		record.New(map[string]any{"id": 7, "name": "ops"}),
		record.New(map[string]any{"id": 8, "name": "eng"}),
	}})
	st.Dispatch(store.AddRecords{Kind: "shifts", Items: []record.Record{
		record.New(map[string]any{"id": 100, "user_id": 1, "date": "2026-09-03"}),
		record.New(map[string]any{"id": 101, "user_id": 1, "date": "2026-08-30"}),
		record.New(map[string]any{"id": 102, "user_id": 2, "date": "2026-09-05"}),
	}})
	st.Dispatch(store.AddRecords{Kind: "tasks", Items: []record.Record{
		record.New(map[string]any{"id": 200, "user_id": 1}),
	}})
	return st
}

func sameSlice(a, b []record.Record) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}

func TestMaterializeJoinsSingularAndPlural(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	users := m.Materialize("users", Options{Joins: []string{"teams", "shifts"}})
	require.Len(t, users, 2)

	team, ok := users[0].Value("team").(record.Record)
	require.True(t, ok)
	assert.Equal(t, "ops", team.Value("name"))

	shifts, ok := users[0].Value("shifts").([]record.Record)
	require.True(t, ok)
	assert.Len(t, shifts, 2)
}

func TestMaterializeMemoizesIdenticalSlice(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	opts := Options{Joins: "teams", Filters: map[string]any{"role": "admin"}}
	first := m.Materialize("users", opts)
	second := m.Materialize("users", opts)
	assert.True(t, sameSlice(first, second), "unchanged inputs must return the identical slice")
}

func TestMaterializeMemoSurvivesUnrelatedMutation(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	first := m.Materialize("users", Options{Joins: "teams"})
	// Shifts are not an input of this view.
	st.Dispatch(store.AddRecords{Kind: "shifts", Items: []record.Record{
		record.New(map[string]any{"id": 103, "user_id": 2, "date": "2026-09-06"}),
	}})
	second := m.Materialize("users", Options{Joins: "teams"})
	assert.True(t, sameSlice(first, second), "mutating a kind outside the view must not recompute it")
}

func TestMaterializeRecomputesWhenInputKindChanges(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	first := m.Materialize("users", Options{Joins: "teams"})
	st.Dispatch(store.LocalUpdate{Kind: "teams", Item: record.New(map[string]any{"id": 7, "name": "platform"})})
	second := m.Materialize("users", Options{Joins: "teams"})

	assert.False(t, sameSlice(first, second))
	team := second[0].Value("team").(record.Record)
	assert.Equal(t, "platform", team.Value("name"))
}

func TestMaterializeDistinctOptionsDistinctEntries(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	admins := m.Materialize("users", Options{Filters: map[string]any{"role": "admin"}})
	members := m.Materialize("users", Options{Filters: map[string]any{"role": "member"}})
	require.Len(t, admins, 1)
	require.Len(t, members, 1)
	assert.Equal(t, int64(1), admins[0].ID())
	assert.Equal(t, int64(2), members[0].ID())

	// Both stay memoized side by side.
	assert.True(t, sameSlice(admins, m.Materialize("users", Options{Filters: map[string]any{"role": "admin"}})))
	assert.True(t, sameSlice(members, m.Materialize("users", Options{Filters: map[string]any{"role": "member"}})))
}

func TestDefaultJoinsFromSchema(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	tasks := m.All("tasks")
	require.Len(t, tasks, 1)
	user, ok := tasks[0].Value("user").(record.Record)
	require.True(t, ok)
	assert.Equal(t, "ada", user.Value("name"))

	bare := m.Materialize("tasks", Options{SkipDefaultJoins: true})
	require.Len(t, bare, 1)
	assert.Nil(t, bare[0].Value("user"))
}

func TestWhereNotAndIncludes(t *testing.T) {
	st := store.New(viewSchema(), nil)
	st.Dispatch(store.AddRecords{Kind: "users", Items: []record.Record{
		record.New(map[string]any{"id": 1, "role": "admin", "tags": []any{"a", "b"}}),
		record.New(map[string]any{"id": 2, "role": "member", "tags": []any{"c"}}),
	}})
	m := New(Config{Store: st})

	not := m.WhereNot("users", map[string]any{"role": "admin"})
	require.Len(t, not, 1)
	assert.Equal(t, int64(2), not[0].ID())

	inc := m.Includes("users", map[string]any{"tags": "b"})
	require.Len(t, inc, 1)
	assert.Equal(t, int64(1), inc[0].ID())
}

func TestWhereAcceptsTypedSliceAndRangeFilters(t *testing.T) {
	// Filter values arrive in whatever shape the caller held; the memo key
	// and matcher must both take them.
	st := seededStore(t)
	m := New(Config{Store: st})

	byTeams := m.Where("users", map[string]any{"team_id": []int{7, 8}})
	assert.Len(t, byTeams, 2)

	inWindow := m.Where("shifts", map[string]any{"date": query.NewRange(
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
	)})
	require.Len(t, inWindow, 1)
	assert.Equal(t, int64(100), inWindow[0].ID())
}

func TestFind(t *testing.T) {
	st := seededStore(t)
	m := New(Config{Store: st})

	r, ok := m.Find("users", 2, Options{Joins: "teams"})
	require.True(t, ok)
	assert.Equal(t, "grace", r.Value("name"))
	assert.Equal(t, "eng", r.Value("team").(record.Record).Value("name"))

	_, ok = m.Find("users", 99, Options{})
	assert.False(t, ok)
}

func TestBetweenDaysAndAfterToday(t *testing.T) {
	st := seededStore(t)
	clock := testutil.NewClock(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	m := New(Config{Store: st, Now: clock.Now})

	window := m.BetweenDays("shifts", "date",
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		Options{})
	require.Len(t, window, 1)
	assert.Equal(t, int64(100), window[0].ID())

	upcoming := m.AfterToday("shifts", "date", Options{})
	require.Len(t, upcoming, 2)

	openEnd := m.BetweenDays("shifts", "date", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), time.Time{}, Options{})
	assert.Len(t, openEnd, 2)
}

func TestWrapAndEnrichHooks(t *testing.T) {
	st := seededStore(t)
	m := New(Config{
		Store: st,
		Wrap: func(kind string, r record.Record) record.Record {
			c := r.Clone()
			c.Fields["kind"] = kind
			return c
		},
		Enrich: func(kind string, items []record.Record) []record.Record {
			// Views of users hide member records entirely.
			if kind != "users" {
				return items
			}
			out := items[:0:0]
			for _, r := range items {
				if r.Value("role") != "member" {
					out = append(out, r)
				}
			}
			return out
		},
	})

	users := m.All("users")
	require.Len(t, users, 1)
	assert.Equal(t, "users", users[0].Value("kind"))
	assert.Equal(t, "admin", users[0].Value("role"))
}
