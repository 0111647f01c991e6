package ttsworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/convregistry"
	"github.com/duplexmesh/bargein/internal/metrics"
	"github.com/duplexmesh/bargein/internal/proto"
)

// maxChunkBytes is the ≤4096-byte (~128ms at 16kHz 16-bit mono) slice size
// named in §4.5 step 2.
const maxChunkBytes = 4096

const ttsActiveTTL = 30 * time.Second

// convState is one conversation's FIFO synthesis queue and cancellation
// flag, serialized by mu per the Idle → Synthesizing → {Idle, Cancelled}
// state machine.
type convState struct {
	mu        sync.Mutex
	queue     []proto.SentenceRequest
	cancelled bool
	active    bool
}

// Worker synthesizes sentence requests into per-conversation audio streams
// with cancellable, strictly ordered playback.
type Worker struct {
	b        broker.Broker
	tts      *Router
	engine   string
	tunables config.Tunables

	states *convregistry.Registry[convState]
}

// NewWorker creates a TTS worker wired to b.
func NewWorker(b broker.Broker, tts *Router, engine string, tunables config.Tunables) *Worker {
	return &Worker{
		b:        b,
		tts:      tts,
		engine:   engine,
		tunables: tunables,
		states:   convregistry.New(func() *convState { return &convState{} }),
	}
}

// Run subscribes to tts.request, tts.control, bargein, and conn.events and
// drives per-conversation synthesis until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler func(context.Context, broker.Message)
	}{
		{proto.TopicTTSRequest, w.handleRequest},
		{proto.TopicTTSControl, w.handleControl},
		{proto.TopicBargeIn, w.handleCancelTopic},
		{proto.TopicConnectionEvents, w.handleCancelTopic},
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		ch, cancel, err := w.b.Subscribe(ctx, s.topic)
		if err != nil {
			return err
		}
		defer cancel()

		wg.Add(1)
		go func(ch <-chan broker.Message, handler func(context.Context, broker.Message)) {
			defer wg.Done()
			for msg := range ch {
				handler(ctx, msg)
			}
		}(ch, s.handler)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) handleRequest(ctx context.Context, msg broker.Message) {
	var req proto.SentenceRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}

	state := w.states.GetOrCreate(req.ConversationID)
	state.mu.Lock()
	state.queue = append(state.queue, req)
	state.cancelled = false
	startLoop := !state.active
	if startLoop {
		state.active = true
	}
	state.mu.Unlock()

	metrics.TTSQueueDepth.Inc()

	if startLoop {
		go w.drainQueue(ctx, req.ConversationID, state)
	}
}

func (w *Worker) handleControl(ctx context.Context, msg broker.Message) {
	var ctrl proto.TTSControlMessage
	if err := json.Unmarshal(msg.Payload, &ctrl); err != nil {
		return
	}
	if ctrl.Action == proto.TTSControlStop {
		w.cancel(ctrl.ConversationID)
	}
}

func (w *Worker) handleCancelTopic(ctx context.Context, msg broker.Message) {
	var event struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return
	}
	w.cancel(event.ConversationID)
}

func (w *Worker) cancel(conversationID string) {
	state, ok := w.states.Get(conversationID)
	if !ok {
		return
	}
	state.mu.Lock()
	state.cancelled = true
	dropped := len(state.queue)
	state.queue = nil
	state.mu.Unlock()
	if dropped > 0 {
		metrics.TTSQueueDepth.Sub(float64(dropped))
	}
}

// drainQueue processes one conversation's queue strictly in sequence order
// until it empties or is cancelled.
func (w *Worker) drainQueue(ctx context.Context, conversationID string, state *convState) {
	for {
		state.mu.Lock()
		if state.cancelled || len(state.queue) == 0 {
			state.active = false
			state.cancelled = false
			state.mu.Unlock()
			return
		}
		req := state.queue[0]
		state.queue = state.queue[1:]
		state.mu.Unlock()

		metrics.TTSQueueDepth.Dec()
		w.synthesizeSentence(ctx, conversationID, req, state)
	}
}

func (w *Worker) synthesizeSentence(ctx context.Context, conversationID string, req proto.SentenceRequest, state *convState) {
	text := StripMarkdown(req.Text)
	if text == "" {
		return
	}
	if w.tunables.TextNormalization {
		text = NormalizeForSpeech(text)
	}

	synCtx, cancel := context.WithTimeout(ctx, time.Duration(w.tunables.TTSSynthesisTimeoutSeconds)*time.Second)
	defer cancel()

	result, err := w.tts.Synthesize(synCtx, text, w.engine, SynthOptions{VoiceID: req.VoiceID})
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "synthesize").Inc()
		w.publishEnvelope(conversationID, proto.AudioEnvelope{
			Type: proto.AudioStreamError, ConversationID: conversationID, Error: err.Error(),
		})
		return
	}

	samples := result.Samples
	if result.SampleRate != 16000 {
		samples = resampleTo16k(samples, result.SampleRate)
	}

	if err := w.b.Set(ctx, proto.KeyTTSActive(conversationID), []byte("1"), ttsActiveTTL); err != nil {
		slog.Warn("ttsworker: set ttsActive failed", "conversation_id", conversationID, "error", err)
	}
	w.publishEnvelope(conversationID, proto.AudioEnvelope{
		Type: proto.AudioStreamStart, ConversationID: conversationID, SampleRate: 16000, Channels: 1, Format: "pcm_s16le",
	})

	lastRefresh := time.Now()
	refreshEvery := time.Duration(w.tunables.TTSActiveRefreshSeconds) * time.Second

	pcm := samplesToPCM16(samples)
	for offset := 0; offset < len(pcm); offset += maxChunkBytes {
		state.mu.Lock()
		cancelled := state.cancelled
		state.mu.Unlock()
		if cancelled {
			w.publishEnvelope(conversationID, proto.AudioEnvelope{
				Type: proto.AudioStreamEnd, ConversationID: conversationID, Reason: "interrupted",
			})
			_ = w.b.Delete(ctx, proto.KeyTTSActive(conversationID))
			return
		}

		end := min(offset+maxChunkBytes, len(pcm))
		if err := w.b.Publish(ctx, proto.TopicAudioOut(conversationID), pcm[offset:end]); err != nil {
			metrics.BrokerPublishFailures.WithLabelValues(proto.TopicAudioOut(conversationID)).Inc()
		}

		if refreshEvery > 0 && time.Since(lastRefresh) >= refreshEvery {
			_ = w.b.Set(ctx, proto.KeyTTSActive(conversationID), []byte("1"), ttsActiveTTL)
			lastRefresh = time.Now()
		}
	}

	w.publishEnvelope(conversationID, proto.AudioEnvelope{Type: proto.AudioStreamEnd, ConversationID: conversationID})

	state.mu.Lock()
	queueEmpty := len(state.queue) == 0
	state.mu.Unlock()
	if queueEmpty {
		_ = w.b.Delete(ctx, proto.KeyTTSActive(conversationID))
	}
}

func (w *Worker) publishEnvelope(conversationID string, env proto.AudioEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err = w.b.Publish(context.Background(), proto.TopicAudioOut(conversationID), payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicAudioOut(conversationID)).Inc()
	}
}
