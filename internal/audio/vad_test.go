package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB:   -30,
		SilenceTimeout:      20 * time.Millisecond,
		MinSpeechDuration:   10 * time.Millisecond,
		PreSpeechBuffer:     0,
		SampleRate:          16000,
		CalibrationDuration: 0, // disable adaptive calibration for deterministic thresholds
	}
}

func loudSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.9
	}
	return out
}

func silentSamples(n int) []float32 {
	return make([]float32, n)
}

func TestVADDetectsSpeechStart(t *testing.T) {
	v := NewVAD(testVADConfig())
	assert.False(t, v.IsSpeaking())

	result := v.Process(loudSamples(160))
	assert.False(t, result.SpeechEnded)
	assert.True(t, v.IsSpeaking())
	assert.False(t, v.SpeechStartedAt().IsZero())
}

func TestVADIgnoresSilenceBelowMinSpeechDuration(t *testing.T) {
	v := NewVAD(testVADConfig())

	v.Process(loudSamples(160))
	// Speech run is shorter than MinSpeechDuration, so ending it should not
	// surface a completed segment.
	time.Sleep(25 * time.Millisecond)
	result := v.Process(silentSamples(160))
	assert.False(t, result.SpeechEnded)
	assert.False(t, v.IsSpeaking())
}

func TestVADEmitsCompletedSegmentAfterSilenceTimeout(t *testing.T) {
	v := NewVAD(testVADConfig())

	v.Process(loudSamples(160))
	time.Sleep(15 * time.Millisecond) // exceed MinSpeechDuration while still speaking
	v.Process(loudSamples(160))

	time.Sleep(25 * time.Millisecond) // exceed SilenceTimeout
	result := v.Process(silentSamples(160))

	require.True(t, result.SpeechEnded)
	assert.NotEmpty(t, result.Audio)
	assert.False(t, v.IsSpeaking())
}

func TestVADFlushReturnsBufferedAudioAndResets(t *testing.T) {
	v := NewVAD(testVADConfig())
	v.Process(loudSamples(160))

	audio := v.Flush()
	assert.NotEmpty(t, audio)
	assert.False(t, v.IsSpeaking())
	assert.Nil(t, v.Flush())
}

func TestVADFlushOnIdleVADReturnsNil(t *testing.T) {
	v := NewVAD(testVADConfig())
	assert.Nil(t, v.Flush())
}
