package convregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type counter struct {
	n int
}

func TestRegistryGetOrCreateCreatesOnce(t *testing.T) {
	r := New(func() *counter { return &counter{} })

	a := r.GetOrCreate("conv-1")
	a.n = 5
	b := r.GetOrCreate("conv-1")

	assert.Same(t, a, b)
	assert.Equal(t, 5, b.n)
}

func TestRegistryGetReportsAbsence(t *testing.T) {
	r := New(func() *counter { return &counter{} })

	_, ok := r.Get("missing")
	assert.False(t, ok)

	r.GetOrCreate("present")
	item, ok := r.Get("present")
	assert.True(t, ok)
	assert.NotNil(t, item)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := New(func() *counter { return &counter{} })
	r.GetOrCreate("conv-1")
	assert.Equal(t, 1, r.Len())

	r.Remove("conv-1")
	assert.Equal(t, 0, r.Len())

	// Removing an absent id must not panic or error.
	r.Remove("conv-1")
	assert.Equal(t, 0, r.Len())
}

func TestRegistryForEachVisitsAllEntries(t *testing.T) {
	r := New(func() *counter { return &counter{} })
	r.GetOrCreate("a")
	r.GetOrCreate("b")
	r.GetOrCreate("c")

	seen := map[string]bool{}
	r.ForEach(func(id string, item *counter) {
		seen[id] = true
	})

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}
