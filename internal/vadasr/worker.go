package vadasr

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/duplexmesh/bargein/internal/audio"
	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/convregistry"
	"github.com/duplexmesh/bargein/internal/metrics"
	"github.com/duplexmesh/bargein/internal/proto"
)

// idleReapInterval is how often the reaper sweeps for conversations with no
// recent activity.
const idleReapInterval = 30 * time.Second

// idleTimeout matches the ~5 min idle-state reap policy.
const idleTimeout = 5 * time.Minute

// partialMinSpeech is how long speech must be sustained before the first
// partial transcript is requested; the spacing between later partials comes
// from the ASRPartialIntervalMs tunable.
const partialMinSpeech = 300 * time.Millisecond

// Worker consumes raw mic PCM per conversation, gates it with a VAD, and
// produces transcripts and barge-in signals.
type Worker struct {
	b        broker.Broker
	asr      *Router
	engine   string
	tunables config.Tunables
	vadCfg   audio.VADConfig

	states *convregistry.Registry[procState]
}

// NewWorker creates a VAD/ASR worker. engine selects the ASR backend by name
// via the router's fallback-aware Route.
func NewWorker(b broker.Broker, asr *Router, engine string, tunables config.Tunables, vadCfg audio.VADConfig) *Worker {
	return &Worker{
		b:        b,
		asr:      asr,
		engine:   engine,
		tunables: tunables,
		vadCfg:   vadCfg,
		states:   convregistry.New(func() *procState { return newProcState(vadCfg) }),
	}
}

// Run subscribes to audio.in and conn.events and processes frames until ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	audioCh, cancelAudio, err := w.b.Subscribe(ctx, proto.TopicAudioIn)
	if err != nil {
		return err
	}
	defer cancelAudio()

	connCh, cancelConn, err := w.b.Subscribe(ctx, proto.TopicConnectionEvents)
	if err != nil {
		return err
	}
	defer cancelConn()

	reapTicker := time.NewTicker(idleReapInterval)
	defer reapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-audioCh:
			if !ok {
				return nil
			}
			w.handleAudioMessage(ctx, msg)
		case msg, ok := <-connCh:
			if !ok {
				return nil
			}
			w.handleConnEvent(msg)
		case now := <-reapTicker.C:
			w.reapIdle(now)
		}
	}
}

func (w *Worker) handleAudioMessage(ctx context.Context, msg broker.Message) {
	var in proto.AudioInMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		slog.Warn("vadasr: bad audio.in payload", "error", err)
		return
	}
	if len(in.Audio) == 0 {
		return
	}

	codec := audio.Codec(in.Codec)
	if codec == "" {
		codec = audio.CodecPCM
	}
	samples, rate, err := audio.Decode(in.Audio, codec, in.SampleRate)
	if err != nil {
		metrics.Errors.WithLabelValues("vad", "decode").Inc()
		slog.Warn("vadasr: decode failed", "conversation_id", in.ConversationID, "error", err)
		return
	}
	if rate != w.vadCfg.SampleRate {
		samples = audio.Resample(samples, rate, w.vadCfg.SampleRate)
	}
	metrics.AudioChunks.Inc()

	state := w.states.GetOrCreate(in.ConversationID)
	w.processFrame(ctx, in.ConversationID, state, samples)
}

// processFrame runs the §4.3 per-frame algorithm against one conversation's state.
func (w *Worker) processFrame(ctx context.Context, conversationID string, p *procState, samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.touch(now)

	wasSpeaking := p.vad.IsSpeaking()
	result := p.vad.Process(samples)
	nowSpeaking := p.vad.IsSpeaking()

	if nowSpeaking && !wasSpeaking {
		p.speechStartedAt = now
		p.speechBuf = p.speechBuf[:0]
	}

	if nowSpeaking {
		p.speechBuf = append(p.speechBuf, samples...)
		w.maybeBargeIn(ctx, conversationID, p, now)
		w.maybePartial(ctx, conversationID, p, now)
		return
	}

	if result.SpeechEnded {
		w.emitFinal(ctx, conversationID, p, result.Audio)
		p.speechStartedAt = time.Time{}
		p.speechBuf = p.speechBuf[:0]
	}
}

// maybeBargeIn checks the §4.3 barge-in policy: speech sustained ≥150ms,
// debounced to at most once per second, and only while TTS is active.
func (w *Worker) maybeBargeIn(ctx context.Context, conversationID string, p *procState, now time.Time) {
	active, err := w.b.Get(ctx, proto.KeyTTSActive(conversationID))
	if err != nil || len(active) == 0 {
		return
	}

	minSpeech := time.Duration(w.tunables.BargeInMinSpeechMs) * time.Millisecond
	if !p.bargeInDecision(now, minSpeech, w.tunables.BargeInDebounce) {
		return
	}

	sig := proto.BargeInSignal{ConversationID: conversationID, TimestampMs: now.UnixMilli()}
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err = w.b.Publish(ctx, proto.TopicBargeIn, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicBargeIn).Inc()
		return
	}
	metrics.BargeInLatency.Observe(now.Sub(p.speechStartedAt).Seconds())
}

// maybePartial requests a partial transcript after ~300ms of sustained
// speech, then at most once every ~500ms thereafter.
func (w *Worker) maybePartial(ctx context.Context, conversationID string, p *procState, now time.Time) {
	if now.Sub(p.speechStartedAt) < partialMinSpeech {
		return
	}
	partialInterval := time.Duration(w.tunables.ASRPartialIntervalMs) * time.Millisecond
	if !p.lastPartialAt.IsZero() && now.Sub(p.lastPartialAt) < partialInterval {
		return
	}
	p.lastPartialAt = now
	p.partialSeq++

	buf := make([]float32, len(p.speechBuf))
	copy(buf, p.speechBuf)

	go w.transcribeAndEmit(ctx, conversationID, buf, ASROptions{IsFinal: false})
}

// emitFinal requests a final transcript for the completed speech segment.
func (w *Worker) emitFinal(ctx context.Context, conversationID string, p *procState, segment []float32) {
	if len(segment) == 0 {
		w.publishTranscript(ctx, conversationID, proto.TranscriptFinal, "")
		return
	}
	buf := make([]float32, len(segment))
	copy(buf, segment)
	go w.transcribeAndEmit(ctx, conversationID, buf, ASROptions{IsFinal: true})
}

func (w *Worker) transcribeAndEmit(ctx context.Context, conversationID string, samples []float32, opts ASROptions) {
	result, err := w.asr.Transcribe(ctx, samples, w.engine, opts)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "transcribe").Inc()
		if opts.IsFinal {
			w.publishTranscript(ctx, conversationID, proto.TranscriptFinal, "")
		}
		return
	}

	text := filterTranscript(result.Text, result.NoSpeechProb, w.tunables.ASRConfidenceThreshold)
	if text == "" {
		metrics.ASRNoiseFiltered.Inc()
		if opts.IsFinal {
			w.publishTranscript(ctx, conversationID, proto.TranscriptFinal, "")
		}
		return
	}

	kind := proto.TranscriptPartial
	if opts.IsFinal {
		kind = proto.TranscriptFinal
	}
	w.publishTranscript(ctx, conversationID, kind, text)
}

func (w *Worker) publishTranscript(ctx context.Context, conversationID string, kind proto.TranscriptKind, text string) {
	event := proto.TranscriptEvent{
		Kind:           kind,
		ConversationID: conversationID,
		Text:           text,
		TimestampMs:    time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err = w.b.Publish(ctx, proto.TopicTranscript, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicTranscript).Inc()
	}
}

func (w *Worker) handleConnEvent(msg broker.Message) {
	var event proto.ConnectionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return
	}
	w.states.Remove(event.ConversationID)
}

func (w *Worker) reapIdle(now time.Time) {
	var stale []string
	w.states.ForEach(func(id string, p *procState) {
		p.mu.Lock()
		idle := p.idleFor(now)
		p.mu.Unlock()
		if idle > idleTimeout {
			stale = append(stale, id)
		}
	})
	for _, id := range stale {
		w.states.Remove(id)
		slog.Info("vadasr: reaped idle conversation", "conversation_id", id)
	}
}
