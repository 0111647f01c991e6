package ttsworker

import (
	"encoding/binary"
	"math"

	"github.com/duplexmesh/bargein/internal/audio"
)

// resampleTo16k converts synthesized audio to the 16kHz rate the gateway's
// audio.out.<id> stream is fixed at, per the resampling open question.
func resampleTo16k(samples []float32, srcRate int) []float32 {
	return audio.Resample(samples, srcRate, 16000)
}

// samplesToPCM16 encodes float32 samples in [-1, 1] as raw little-endian
// 16-bit PCM, the binary frame format carried on audio.out.<id>.
func samplesToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		v := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
