package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/schema"
)

func rec(fields map[string]any) record.Record {
	return record.New(fields)
}

func scoped(fields map[string]any, scopes ...string) record.Record {
	r := record.New(fields)
	r.FetchedScopes = scopes
	return r
}

func newTestStore() *Store {
	return New(nil, nil)
}

func ids(items []record.Record) []any {
	out := make([]any, len(items))
	for i, r := range items {
		out[i] = r.ID()
	}
	return out
}

func TestMerge_IntoEmptyKind(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{
		Kind:  "users",
		Items: []record.Record{scoped(map[string]any{"id": 1, "updated_at": "t1"}, "users")},
	})

	got := s.State().Collection("users")
	require.Len(t, got, 1)
	assert.True(t, got[0].Confirmed)
	assert.Equal(t, []string{"users"}, got[0].FetchedScopes)
}

func TestMerge_SameIDCombinesFields_IncomingWins(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "name": "old", "keep": "x", "updated_at": "t1"}, "a"),
	}})
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "name": "new", "updated_at": "t2"}, "b"),
	}})

	got := s.State().Collection("users")
	require.Len(t, got, 1, "merges never produce duplicate ids")
	assert.Equal(t, "new", got[0].Value("name"))
	assert.Equal(t, "x", got[0].Value("keep"))
	// Stamps differ, so the incoming version's scopes win.
	assert.Equal(t, []string{"b"}, got[0].FetchedScopes)
}

func TestMerge_EqualStampsUnionFetchedScopes(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "updated_at": "t1"}, "a"),
	}})
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "updated_at": "t1"}, "b"),
	}})

	got := s.State().Collection("users")
	require.Len(t, got, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, got[0].FetchedScopes)
}

func TestMerge_EmptyResponseIsNoOp(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}})

	before := s.State()
	s.Dispatch(Merge{Kind: "users", ActionVersion: before.ActionVersion("users")})
	assert.Same(t, before, s.State(), "an empty non-force merge leaves the snapshot untouched")
}

func TestMerge_KeepsCheckpointsWhenResponseOmitsThem(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}, DeletedStamp: "d1", ActionVersion: 3})
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 2}, "users")}})

	st := s.State()
	assert.Equal(t, "d1", st.DeletedStamp("users"))
	assert.Equal(t, int64(3), st.ActionVersion("users"))
}

func TestMerge_Idempotent(t *testing.T) {
	s1 := newTestStore()
	s2 := newTestStore()
	items := []record.Record{
		scoped(map[string]any{"id": 1, "updated_at": "t1"}, "users"),
		scoped(map[string]any{"id": 2, "updated_at": "t1"}, "users"),
	}
	s1.Dispatch(Merge{Kind: "users", Items: items})
	s2.Dispatch(Merge{Kind: "users", Items: items})
	s2.Dispatch(Merge{Kind: "users", Items: items})

	assert.Equal(t, s1.State().Collection("users"), s2.State().Collection("users"))
}

func TestMerge_ForceReplacesCollection(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1}, "users"),
		scoped(map[string]any{"id": 2}, "users"),
	}})
	s.Dispatch(Merge{Kind: "users", Force: true, Items: []record.Record{
		scoped(map[string]any{"id": 3}, "users"),
	}})

	assert.Equal(t, []any{int64(3)}, ids(s.State().Collection("users")))
}

func TestMerge_DeletedIDsRemoveOutright(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1}, "users"),
		scoped(map[string]any{"id": 2}, "users"),
	}})
	s.Dispatch(Merge{Kind: "users", DeletedIDs: []any{1}})

	assert.Equal(t, []any{int64(2)}, ids(s.State().Collection("users")))
}

func TestMerge_ScopeIsolation(t *testing.T) {
	// Two scopes of the same kind never evict each other's records.
	s := newTestStore()
	scopeA := `users-{"team_id":1}`
	scopeB := `users-{"team_id":2}`
	s.Dispatch(Merge{Kind: "users", ScopeKey: scopeA, Items: []record.Record{
		scoped(map[string]any{"id": 1, "updated_at": "t1"}, scopeA),
	}})
	s.Dispatch(Merge{Kind: "users", ScopeKey: scopeB, Items: []record.Record{
		scoped(map[string]any{"id": 2, "updated_at": "t1"}, scopeB),
	}})
	require.Len(t, s.State().Collection("users"), 2)

	// Record 1 leaves scope A: gone entirely, it had no other scope.
	s.Dispatch(Merge{Kind: "users", ScopeKey: scopeA, RemovedFromScopeIDs: []any{1}})
	assert.Equal(t, []any{int64(2)}, ids(s.State().Collection("users")))
}

func TestMerge_RemovedFromScopeKeepsMultiScopeRecords(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "updated_at": "t1"}, "a", "b"),
	}})
	s.Dispatch(Merge{Kind: "users", ScopeKey: "a", RemovedFromScopeIDs: []any{1}})

	got := s.State().Collection("users")
	require.Len(t, got, 1, "still valid through scope b")
	assert.Equal(t, []string{"b"}, got[0].FetchedScopes)
}

func TestMerge_RemovedFromScopeSparesScopelessRecords(t *testing.T) {
	// Records pushed in band carry no scopes; scope eviction must not
	// touch them.
	s := newTestStore()
	s.Dispatch(LocalCreate{Kind: "users", Item: rec(map[string]any{"id": 1})})
	s.Dispatch(Merge{Kind: "users", ScopeKey: "a", RemovedFromScopeIDs: []any{1}})

	require.Len(t, s.State().Collection("users"), 1)
}

func TestLocalMerge_MarksProvisionalAndKeepsScopes(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "name": "a", "updated_at": "t1"}, "users"),
	}})
	s.Dispatch(LocalMerge{Kind: "users", Items: []record.Record{
		rec(map[string]any{"id": 1, "name": "b"}),
	}})

	got := s.State().Collection("users")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Value("name"))
	assert.False(t, got[0].Confirmed)
	assert.Equal(t, []string{"users"}, got[0].FetchedScopes)
}

func TestLocalUpdate_KeepsScopes(t *testing.T) {
	// Only the server grows or shrinks scope bookkeeping; an optimistic
	// write to a synced record must leave its scopes intact.
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{
		scoped(map[string]any{"id": 1, "name": "a", "updated_at": "t1"}, "users"),
	}})
	s.Dispatch(LocalUpdate{Kind: "users", Item: rec(map[string]any{"id": 1, "name": "b"})})

	got := s.State().Collection("users")
	require.Len(t, got, 1)
	assert.False(t, got[0].Confirmed)
	assert.Equal(t, []string{"users"}, got[0].FetchedScopes)
}

func TestLocalCreateUpdateDelete(t *testing.T) {
	s := newTestStore()
	s.Dispatch(LocalCreate{Kind: "users", Item: rec(map[string]any{"id": 1, "name": "a"})})
	s.Dispatch(LocalUpdate{Kind: "users", Item: rec(map[string]any{"id": 1, "name": "b"})})

	got := s.State().Collection("users")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Value("name"))
	assert.False(t, got[0].Confirmed)

	s.Dispatch(LocalDelete{Kind: "users", IDs: []any{1}})
	assert.Empty(t, s.State().Collection("users"))
}

func TestLocalDelete_UnknownKindIsNoOp(t *testing.T) {
	s := newTestStore()
	before := s.State()
	s.Dispatch(LocalDelete{Kind: "ghosts", IDs: []any{1}})
	assert.Same(t, before, s.State())
}

func TestAddRecords_UpsertsBatch(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1, "name": "a"}, "users")}})
	s.Dispatch(AddRecords{Kind: "users", Items: []record.Record{
		rec(map[string]any{"id": 1, "name": "b"}),
		rec(map[string]any{"id": 2, "name": "c"}),
	}})

	got := s.State().Collection("users")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Value("name"))
	assert.False(t, got[0].Confirmed)
	assert.Equal(t, []string{"users"}, got[0].FetchedScopes)
}

func TestClearCache_EmptiesKindAndStamps(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}, DeletedStamp: "d1", ActionVersion: 3})
	s.Dispatch(ClearCache{Kinds: []string{"users"}})

	st := s.State()
	assert.Empty(t, st.Collection("users"))
	assert.Nil(t, st.DeletedStamp("users"))
	assert.Zero(t, st.ActionVersion("users"))
}

func TestReset_KeepsNamedKinds(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}, DeletedStamp: "d1"})
	s.Dispatch(Merge{Kind: "teams", Items: []record.Record{scoped(map[string]any{"id": 5}, "teams")}})
	s.Dispatch(Reset{Keep: []string{"users"}})

	st := s.State()
	assert.Len(t, st.Collection("users"), 1)
	assert.Equal(t, "d1", st.DeletedStamp("users"))
	assert.Empty(t, st.Collection("teams"))
}

func TestReset_DiscardsNamedKinds(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}})
	s.Dispatch(Merge{Kind: "teams", Items: []record.Record{scoped(map[string]any{"id": 5}, "teams")}})
	s.Dispatch(Reset{Discard: []string{"teams"}})

	st := s.State()
	assert.Len(t, st.Collection("users"), 1)
	assert.Empty(t, st.Collection("teams"))
}

func TestSortFunc_AppliedOnEveryWrite(t *testing.T) {
	cfg := schema.Schema{"shifts": {Name: "shifts", SortField: "date"}}
	s := New(cfg, nil)
	s.Dispatch(Merge{Kind: "shifts", Items: []record.Record{
		scoped(map[string]any{"id": 1, "date": "2024-03-20"}, "shifts"),
		scoped(map[string]any{"id": 2, "date": "2024-03-01"}, "shifts"),
	}})

	got := s.State().Collection("shifts")
	assert.Equal(t, []any{int64(2), int64(1)}, ids(got))
}

func TestGeneration_BumpsOnlyForTouchedKinds(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}})
	usersGen := s.State().Generation("users")
	teamsGen := s.State().Generation("teams")

	s.Dispatch(Merge{Kind: "teams", Items: []record.Record{scoped(map[string]any{"id": 5}, "teams")}})
	assert.Equal(t, usersGen, s.State().Generation("users"))
	assert.Greater(t, s.State().Generation("teams"), teamsGen)
}

func TestMultiMerge_IsAtomic(t *testing.T) {
	s := newTestStore()
	ch := s.Subscribe()
	s.Dispatch(MultiMerge{Merges: []Merge{
		{Kind: "users", Items: []record.Record{scoped(map[string]any{"id": 1}, "users")}},
		{Kind: "teams", Items: []record.Record{scoped(map[string]any{"id": 5}, "teams")}},
	}})

	st := s.State()
	assert.Len(t, st.Collection("users"), 1)
	assert.Len(t, st.Collection("teams"), 1)

	// One combined update means one notification.
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single coalesced notification")
	default:
	}
}

func TestMerge_IntoUnknownKindTreatedAsEmpty(t *testing.T) {
	s := newTestStore()
	s.Dispatch(Merge{Kind: "never_seen", DeletedIDs: []any{1}, RemovedFromScopeIDs: []any{2}})
	assert.Empty(t, s.State().Collection("never_seen"))
}
