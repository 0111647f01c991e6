// Package audio decodes, resamples, and frames the PCM audio that flows
// between the client, the VAD/ASR worker, and the TTS worker.
package audio

import "fmt"

type Codec string

const CodecPCM Codec = "pcm"

// Decode converts encoded audio bytes to float32 PCM samples normalized to [-1, 1].
// Returns samples and the sample rate.
func Decode(data []byte, codec Codec, sampleRate int) ([]float32, int, error) {
	if codec == CodecPCM {
		return decodePCM(data), sampleRate, nil
	}

	return nil, 0, fmt.Errorf("unsupported codec: %s", codec)
}
