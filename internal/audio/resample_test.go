package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResampleNoOpWhenRatesMatch(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	got := Resample(samples, 16000, 16000)
	assert.Equal(t, samples, got)
}

func TestResampleDownsamplesToExpectedLength(t *testing.T) {
	samples := make([]float32, 32000)
	for i := range samples {
		samples[i] = float32(i) / float32(len(samples))
	}
	got := Resample(samples, 32000, 16000)
	assert.Equal(t, 16000, len(got))
}

func TestResampleUpsamplesToExpectedLength(t *testing.T) {
	samples := make([]float32, 8000)
	got := Resample(samples, 8000, 16000)
	assert.Equal(t, 16000, len(got))
}

func TestInterpolateClampsAtBufferEnd(t *testing.T) {
	samples := []float32{1, 2, 3}
	assert.Equal(t, float32(3), interpolate(samples, 2, 0.5))
}

func TestInterpolateBlendsBetweenSamples(t *testing.T) {
	samples := []float32{0, 10}
	assert.Equal(t, float32(5), interpolate(samples, 0, 0.5))
}
