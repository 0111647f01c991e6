package vadasr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeWERIdenticalTranscriptsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ComputeWER("the quick brown fox", "the quick brown fox"))
}

func TestComputeWERIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, 0.0, ComputeWER("The Quick Brown Fox", "the quick brown fox"))
}

func TestComputeWEREmptyReferenceIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ComputeWER("", "anything at all"))
}

func TestComputeWERSingleSubstitution(t *testing.T) {
	// one of four words wrong -> 1/4
	assert.InDelta(t, 0.25, ComputeWER("the quick brown fox", "the slow brown fox"), 1e-9)
}

func TestComputeWERInsertion(t *testing.T) {
	// hypothesis has one extra word relative to a two-word reference
	assert.InDelta(t, 0.5, ComputeWER("hello world", "hello there world"), 1e-9)
}

func TestComputeWERDeletion(t *testing.T) {
	// hypothesis is missing one of two reference words
	assert.InDelta(t, 0.5, ComputeWER("hello world", "hello"), 1e-9)
}

func TestComputeWEREmptyHypothesisIsAllDeletions(t *testing.T) {
	assert.Equal(t, 1.0, ComputeWER("one two three", ""))
}
