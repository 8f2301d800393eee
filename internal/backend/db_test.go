package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1), "name": "ada"}, "s1"))
	doc, err := db.Get("users", "1")
	require.NoError(t, err)
	assert.Equal(t, "ada", doc["name"])
	assert.Equal(t, "s1", doc["updated_at"])

	missing, err := db.Get("users", "99")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.Put("users", "2", map[string]any{"id": float64(2), "name": "grace"}, "s2"))
	all, err := db.All("users")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteLeavesTombstone(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1)}, "s1"))

	deleted, err := db.Delete("users", "1", "s2")
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := db.Tombstoned("users", "1")
	require.NoError(t, err)
	assert.True(t, gone)

	ids, newest, err := db.DeletedSince("users", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
	assert.Equal(t, "s2", newest)

	// Deleting again reports not found.
	deleted, err = db.Delete("users", "1", "s3")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestPutResurrectsTombstonedID(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1)}, "s1"))
	_, err := db.Delete("users", "1", "s2")
	require.NoError(t, err)

	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1)}, "s3"))
	gone, err := db.Tombstoned("users", "1")
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestNextIDSkipsTombstones(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1)}, "s1"))
	require.NoError(t, db.Put("users", "2", map[string]any{"id": float64(2)}, "s2"))
	_, err := db.Delete("users", "2", "s3")
	require.NoError(t, err)

	// The deleted id stays burned.
	next, err := db.NextID("users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
}

func TestFilteredSince(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put("users", "1", map[string]any{"id": float64(1), "team_id": float64(7), "role": "admin"}, "s1"))
	require.NoError(t, db.Put("users", "2", map[string]any{"id": float64(2), "team_id": float64(8), "role": "admin"}, "s2"))
	require.NoError(t, db.Put("users", "3", map[string]any{"id": float64(3), "team_id": float64(7), "role": "member"}, "s3"))

	docs, err := db.FilteredSince("users", "", map[string]any{"team_id": float64(7)})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	docs, err = db.FilteredSince("users", "s1", map[string]any{"team_id": float64(7)})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(3), docs[0]["id"])

	// Membership filter.
	docs, err = db.FilteredSince("users", "", map[string]any{"role": []any{"admin", "owner"}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCompileFilters(t *testing.T) {
	where, params := compileFilters(nil)
	assert.Empty(t, where)
	assert.Nil(t, params)

	where, params = compileFilters(map[string]any{"b": float64(2), "a": "x"})
	assert.Equal(t, "json_extract(data, '$.a') = ? AND json_extract(data, '$.b') = ?", where)
	assert.Equal(t, []any{"x", float64(2)}, params)

	where, params = compileFilters(map[string]any{"role": []any{"a", "b"}})
	assert.Equal(t, "json_extract(data, '$.role') IN (?, ?)", where)
	assert.Equal(t, []any{"a", "b"}, params)

	where, _ = compileFilters(map[string]any{"deleted": nil})
	assert.Equal(t, "json_extract(data, '$.deleted') IS NULL", where)

	where, _ = compileFilters(map[string]any{"tags": []any{}})
	assert.Equal(t, "1 = 0", where)
}
