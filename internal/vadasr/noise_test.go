package vadasr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNoiseTranscriptBracketWrapped(t *testing.T) {
	assert.True(t, isNoiseTranscript("[inaudible]"))
	assert.True(t, isNoiseTranscript("*crunching*"))
	assert.True(t, isNoiseTranscript("(background noise)"))
}

func TestIsNoiseTranscriptKnownPatterns(t *testing.T) {
	assert.True(t, isNoiseTranscript("um"))
	assert.True(t, isNoiseTranscript("Static"))
}

func TestIsNoiseTranscriptRealSpeechIsNotNoise(t *testing.T) {
	assert.False(t, isNoiseTranscript("what time is my appointment tomorrow"))
}

func TestFilterTranscriptDropsEmpty(t *testing.T) {
	assert.Empty(t, filterTranscript("   ", 0.1, 0))
}

func TestFilterTranscriptDropsAboveConfidenceThreshold(t *testing.T) {
	assert.Empty(t, filterTranscript("hello there", 0.9, 0.5))
}

func TestFilterTranscriptDropsNoisePattern(t *testing.T) {
	assert.Empty(t, filterTranscript("[noise]", 0.0, 0.5))
}

func TestFilterTranscriptPassesCleanSpeech(t *testing.T) {
	assert.Equal(t, "hello there", filterTranscript("  hello there  ", 0.1, 0.5))
}

func TestFilterTranscriptUsesDefaultThresholdWhenUnset(t *testing.T) {
	assert.Empty(t, filterTranscript("hello", 0.7, 0))
	assert.Equal(t, "hello", filterTranscript("hello", 0.5, 0))
}
