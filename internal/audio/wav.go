package audio

import (
	"bytes"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a 16-bit WAV byte slice back into float32 PCM samples in
// [-1, 1], along with its sample rate. Used by the TTS worker to decode a
// synthesis engine's WAV output before resampling and chunking it.
func DecodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / math.MaxInt16
	}
	return samples, buf.Format.SampleRate, nil
}

// SamplesToWAV encodes float32 PCM samples (mono, [-1, 1]) as a 16-bit WAV byte slice.
// Used to frame speech segments for the ASR adapter's multipart upload.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	ints := make([]int, len(samples))
	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		ints[i] = int(clamped * math.MaxInt16)
	}

	var buf bytes.Buffer
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)
	_ = enc.Write(&audio.IntBuffer{
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:   ints,
	})
	_ = enc.Close()
	return buf.Bytes()
}
