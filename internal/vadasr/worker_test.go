package vadasr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexmesh/bargein/internal/audio"
	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/proto"
)

// fastVADConfig detects speech and silence quickly enough for tests to run
// in well under a second without faking the wall clock.
func fastVADConfig() audio.VADConfig {
	return audio.VADConfig{
		SpeechThresholdDB:   -30,
		SilenceTimeout:      30 * time.Millisecond,
		MinSpeechDuration:   10 * time.Millisecond,
		PreSpeechBuffer:     0,
		SampleRate:          16000,
		CalibrationDuration: 0,
	}
}

func fastTunables() config.Tunables {
	t := config.DefaultTunables()
	t.BargeInDebounce = 0
	t.BargeInMinSpeechMs = 0
	t.ASRPartialIntervalMs = 1
	return t
}

func pcm16Bytes(n int, amplitude float32) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(amplitude*math.MaxInt16)))
	}
	return buf
}

func publishAudioIn(t *testing.T, b broker.Broker, conversationID string, audioBytes []byte) {
	t.Helper()
	payload, err := json.Marshal(proto.AudioInMessage{
		ConversationID: conversationID,
		Codec:          string(audio.CodecPCM),
		SampleRate:     16000,
		Audio:          audioBytes,
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), proto.TopicAudioIn, payload))
}

func TestWorkerEmitsFinalTranscriptAfterSilence(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()

	asr := NewRouter(map[string]Transcriber{
		"fake": fakeTranscriber{result: &ASRResult{Text: "hello there"}},
	}, "fake")
	w := NewWorker(b, asr, "fake", fastTunables(), fastVADConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ch, unsub, err := b.Subscribe(ctx, proto.TopicTranscript)
	require.NoError(t, err)
	defer unsub()

	conversationID := "conv-asr-1"
	// 20ms of loud audio exceeds MinSpeechDuration, then silence triggers the
	// SilenceTimeout transition back to non-speech and a final transcript.
	publishAudioIn(t, b, conversationID, pcm16Bytes(320, 0.8))
	time.Sleep(5 * time.Millisecond)
	publishAudioIn(t, b, conversationID, pcm16Bytes(160, 0.0))
	time.Sleep(40 * time.Millisecond)
	publishAudioIn(t, b, conversationID, pcm16Bytes(160, 0.0))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			var ev proto.TranscriptEvent
			require.NoError(t, json.Unmarshal(msg.Payload, &ev))
			if ev.Kind == proto.TranscriptFinal && ev.Text != "" {
				assert.Equal(t, "hello there", ev.Text)
				assert.Equal(t, conversationID, ev.ConversationID)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for final transcript")
		}
	}
}

func TestWorkerEmitsBargeInWhileTTSActive(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()

	asr := NewRouter(map[string]Transcriber{
		"fake": fakeTranscriber{result: &ASRResult{Text: "interrupting"}},
	}, "fake")
	w := NewWorker(b, asr, "fake", fastTunables(), fastVADConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	conversationID := "conv-asr-2"
	require.NoError(t, b.Set(context.Background(), proto.KeyTTSActive(conversationID), []byte("1"), time.Minute))

	ch, unsub, err := b.Subscribe(ctx, proto.TopicBargeIn)
	require.NoError(t, err)
	defer unsub()

	publishAudioIn(t, b, conversationID, pcm16Bytes(320, 0.8))
	publishAudioIn(t, b, conversationID, pcm16Bytes(160, 0.8))

	select {
	case msg := <-ch:
		var sig proto.BargeInSignal
		require.NoError(t, json.Unmarshal(msg.Payload, &sig))
		assert.Equal(t, conversationID, sig.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for barge-in signal")
	}
}

func TestWorkerConnectionEventRemovesState(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()

	asr := NewRouter(map[string]Transcriber{"fake": fakeTranscriber{result: &ASRResult{Text: "x"}}}, "fake")
	w := NewWorker(b, asr, "fake", fastTunables(), fastVADConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	conversationID := "conv-asr-3"
	publishAudioIn(t, b, conversationID, pcm16Bytes(160, 0.8))
	require.Eventually(t, func() bool {
		_, ok := w.states.Get(conversationID)
		return ok
	}, time.Second, 5*time.Millisecond)

	event, err := json.Marshal(proto.ConnectionEvent{ConversationID: conversationID, Reason: proto.DisconnectNormal})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), proto.TopicConnectionEvents, event))

	require.Eventually(t, func() bool {
		_, ok := w.states.Get(conversationID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
