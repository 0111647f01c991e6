package trace

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// maxTraceFieldLen caps the length of transcript/response/input/output
	// strings stored in trace spans to avoid bloating the trace database.
	maxTraceFieldLen = 500

	// traceChannelBuffer is how many trace messages can queue before the
	// background drain goroutine writes them to the store.
	traceChannelBuffer = 64
)

type traceMsg struct {
	kind string // "turn_create", "turn_update", "span"
	// turn fields
	turnID         string
	conversationID string
	durationMs     float64
	transcript     string
	response       string
	status         string
	// span fields
	span Span
}

// Tracer writes trace data asynchronously via a buffered channel. A single
// Tracer is shared across every conversation an orchestrator process
// handles — conversationID is passed per call, not fixed at construction.
// All methods are nil-safe (no-op on nil receiver).
type Tracer struct {
	store *Store
	ch    chan traceMsg
	done  chan struct{}
}

// NewTracer creates a tracer writing to store.
// Launches a background goroutine (drain) that writes trace messages to the
// store sequentially. Callers MUST call Close() when done to flush pending
// writes and stop the goroutine — otherwise writes are lost and goroutine leaks.
func NewTracer(store *Store) *Tracer {
	t := &Tracer{
		store: store,
		ch:    make(chan traceMsg, traceChannelBuffer),
		done:  make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	err := t.dispatch(m)
	if err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

func (t *Tracer) dispatch(m traceMsg) error {
	if m.kind == "turn_create" {
		return t.store.CreateTurn(m.turnID, m.conversationID)
	}
	if m.kind == "turn_update" {
		return t.store.UpdateTurn(m.turnID, m.durationMs, m.transcript, m.response, m.status)
	}
	if m.kind == "span" {
		return t.store.CreateSpan(m.span)
	}
	return nil
}

// StartTurn begins a new turn for conversationID and returns its ID.
func (t *Tracer) StartTurn(conversationID string) string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.ch <- traceMsg{kind: "turn_create", turnID: id, conversationID: conversationID}
	return id
}

// EndTurn finalizes a turn.
func (t *Tracer) EndTurn(turnID string, durationMs float64, transcript, response, status string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind:       "turn_update",
		turnID:     turnID,
		durationMs: durationMs,
		transcript: truncate(transcript, maxTraceFieldLen),
		response:   truncate(response, maxTraceFieldLen),
		status:     status,
	}
}

// RecordSpan records a completed span.
func (t *Tracer) RecordSpan(turnID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			TurnID:     turnID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxTraceFieldLen),
			Output:     truncate(output, maxTraceFieldLen),
			Status:     status,
			Error:      errMsg,
		},
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
