package trace

import "time"

// Conversation represents one client duplex socket.
type Conversation struct {
	ID        string     `json:"id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count,omitempty"`
}

// Turn represents one final-transcript-to-assistant-response exchange.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	StartedAt      time.Time `json:"started_at"`
	DurationMs     float64   `json:"duration_ms,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	Response       string    `json:"response,omitempty"`
	Status         string    `json:"status"`
	SpanCount      int       `json:"span_count,omitempty"`
}

// Span represents an individual pipeline stage execution within a turn
// (asr, llm, tts, tool:<name>).
type Span struct {
	ID         string    `json:"id"`
	TurnID     string    `json:"turn_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
