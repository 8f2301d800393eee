package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, int64(5), NormalizeID(5))
	assert.Equal(t, int64(5), NormalizeID(int64(5)))
	assert.Equal(t, int64(5), NormalizeID(float64(5)))
	assert.Equal(t, int64(5), NormalizeID("5"))
	assert.Equal(t, "abc-1", NormalizeID("abc-1"))
	assert.Nil(t, NormalizeID(nil))
}

func TestSameID_AcrossRepresentations(t *testing.T) {
	assert.True(t, SameID(5, "5"))
	assert.True(t, SameID(float64(5), int64(5)))
	assert.False(t, SameID(5, 6))
	assert.False(t, SameID("a", "b"))
}

func TestRecord_ID(t *testing.T) {
	r := New(map[string]any{"id": float64(12), "name": "x"})
	assert.Equal(t, int64(12), r.ID())
}

func TestRecord_ScopeMembership(t *testing.T) {
	r := New(map[string]any{"id": 1})
	assert.False(t, r.HasScope("users"))

	r2 := r.WithScope("users")
	assert.True(t, r2.HasScope("users"))
	assert.False(t, r.HasScope("users"), "WithScope must not mutate the receiver")

	r3 := r2.WithScope("users")
	assert.Equal(t, []string{"users"}, r3.FetchedScopes, "adding an existing scope is a no-op")

	r4 := r3.WithoutScope("users")
	assert.Empty(t, r4.FetchedScopes)
	assert.True(t, r3.HasScope("users"), "WithoutScope must not mutate the receiver")
}

func TestRecord_Merge_IncomingWinsPerField(t *testing.T) {
	old := New(map[string]any{"id": 1, "name": "old", "keep": true})
	incoming := New(map[string]any{"id": 1, "name": "new"})
	incoming.FetchedScopes = []string{"users"}

	merged := old.Merge(incoming)
	assert.Equal(t, "new", merged.Value("name"))
	assert.Equal(t, true, merged.Value("keep"))
	assert.Equal(t, []string{"users"}, merged.FetchedScopes)
}

func TestRecord_Clone_IsolatesFieldMap(t *testing.T) {
	r := New(map[string]any{"id": 1, "name": "a"})
	c := r.Clone()
	c.Fields["name"] = "b"
	assert.Equal(t, "a", r.Value("name"))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-03-10", FormatDate(d))
}
