package vadasr

import (
	"sync"
	"time"

	"github.com/duplexmesh/bargein/internal/audio"
)

// procState is the per-conversation audio-processor state: a VAD evaluator,
// a speech-accumulation buffer, and activity bookkeeping for barge-in
// debounce and idle reaping. Created lazily on first inbound frame.
type procState struct {
	mu sync.Mutex

	vad *audio.VAD

	speechBuf       []float32
	partialSeq      int
	lastPartialAt   time.Time
	speechStartedAt time.Time

	lastBargeInAt  time.Time
	lastActivityAt time.Time
}

func newProcState(vadCfg audio.VADConfig) *procState {
	return &procState{
		vad:            audio.NewVAD(vadCfg),
		lastActivityAt: time.Now(),
	}
}

// bargeInDecision reports whether a sustained-speech transition under an
// active TTS stream should emit a debounced barge-in signal.
func (p *procState) bargeInDecision(now time.Time, minSpeechDuration, debounce time.Duration) bool {
	if p.speechStartedAt.IsZero() {
		return false
	}
	if now.Sub(p.speechStartedAt) < minSpeechDuration {
		return false
	}
	if now.Sub(p.lastBargeInAt) < debounce {
		return false
	}
	p.lastBargeInAt = now
	return true
}

// touch records that processing happened, for idle reaping.
func (p *procState) touch(now time.Time) {
	p.lastActivityAt = now
}

// idleFor reports how long this state has been inactive.
func (p *procState) idleFor(now time.Time) time.Duration {
	return now.Sub(p.lastActivityAt)
}
