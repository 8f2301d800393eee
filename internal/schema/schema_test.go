package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuiper/recordstore/internal/record"
)

func TestSchema_Defaults(t *testing.T) {
	var s Schema
	assert.Equal(t, "updated_at", s.StampField("users"))
	assert.False(t, s.HasMany("users", "shift"))
	assert.Equal(t, Kind{Name: "users"}, s.Kind("users"))
}

func TestSchema_HasMany(t *testing.T) {
	s := Schema{"users": {Name: "users", HasMany: []string{"shift", "team"}}}
	assert.True(t, s.HasMany("users", "shift"))
	assert.False(t, s.HasMany("users", "tag"))
	assert.False(t, s.HasMany("teams", "shift"))
}

func TestSchema_StampFieldOverride(t *testing.T) {
	s := Schema{"posts": {Name: "posts", StampField: "modified_at"}}
	assert.Equal(t, "modified_at", s.StampField("posts"))
	assert.Equal(t, "updated_at", s.StampField("users"))
}

func TestSchema_Less(t *testing.T) {
	s := Schema{"shifts": {Name: "shifts", SortField: "date"}}
	a := record.New(map[string]any{"id": 1, "date": "2024-03-01"})
	b := record.New(map[string]any{"id": 2, "date": "2024-03-02"})
	missing := record.New(map[string]any{"id": 3})

	assert.True(t, s.Less("shifts", a, b))
	assert.False(t, s.Less("shifts", b, a))
	assert.True(t, s.Less("shifts", a, missing), "records without the sort field order last")
	assert.False(t, s.Less("users", a, b), "kinds without a sort field keep insertion order")
}

func TestSchema_LessNumericDesc(t *testing.T) {
	s := Schema{"teams": {Name: "teams", SortField: "rank", SortDesc: true}}
	a := record.New(map[string]any{"id": 1, "rank": float64(2)})
	b := record.New(map[string]any{"id": 2, "rank": float64(10)})
	assert.True(t, s.Less("teams", b, a))
	assert.False(t, s.Less("teams", a, b))
}

func TestCompileString(t *testing.T) {
	src := `
kinds: {
	users: {
		hasMany: ["shift", "team"]
		defaultJoins: ["team"]
	}
	shifts: {
		sortField: "date"
		createdStampField: "created_at"
	}
}
`
	s, err := CompileString(src)
	require.NoError(t, err)

	users := s.Kind("users")
	assert.Equal(t, []string{"shift", "team"}, users.HasMany)
	assert.Equal(t, []string{"team"}, users.DefaultJoins)

	shifts := s.Kind("shifts")
	assert.Equal(t, "date", shifts.SortField)
	assert.Equal(t, "created_at", shifts.CreatedStampField)
	assert.Equal(t, "updated_at", s.StampField("shifts"))
}

func TestCompileString_MissingKinds(t *testing.T) {
	_, err := CompileString(`other: {}`)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "kinds", cerr.Field)
}

func TestCompileString_BadFieldType(t *testing.T) {
	_, err := CompileString(`kinds: users: hasMany: "shift"`)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "hasMany", cerr.Field)
}
