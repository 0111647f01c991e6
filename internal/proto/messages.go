package proto

import "encoding/json"

// TranscriptKind distinguishes a streaming hypothesis from a stable result.
type TranscriptKind string

const (
	TranscriptPartial TranscriptKind = "partial"
	TranscriptFinal   TranscriptKind = "final"
)

// AudioInMessage wraps one inbound binary frame from the client, published
// by the gateway onto the shared audio.in topic and keyed by ConversationID.
type AudioInMessage struct {
	ConversationID string `json:"conversationId"`
	Codec          string `json:"codec"`
	SampleRate     int    `json:"sampleRate"`
	Audio          []byte `json:"audio"`
}

// TranscriptEvent is produced by the VAD/ASR worker and consumed by the
// gateway (forwarded to the client) and the orchestrator (final only).
type TranscriptEvent struct {
	Kind           TranscriptKind `json:"kind"`
	ConversationID string         `json:"conversationId"`
	Text           string         `json:"text"`
	TimestampMs    int64          `json:"timestampMs"`
}

// AssistantToken is one streamed chunk of LLM output.
type AssistantToken struct {
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

// SentenceRequest is one unit of synthesis work handed from the orchestrator to TTS.
type SentenceRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	VoiceID        string `json:"voiceId"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// TTSControlAction names a control-channel command for one conversation's TTS stream.
type TTSControlAction string

const (
	TTSControlStop TTSControlAction = "stop"
)

// TTSControlMessage instructs the TTS worker to stop synthesis and drop its queue.
type TTSControlMessage struct {
	ConversationID string           `json:"conversationId"`
	Action         TTSControlAction `json:"action"`
}

// ToolInvocation is produced by the orchestrator and consumed by either the
// server-side tool router or (via the gateway) the client.
type ToolInvocation struct {
	ConversationID string `json:"conversationId"`
	ToolCallID     string `json:"toolCallId"`
	ToolName       string `json:"toolName"`
	ArgumentsJSON  string `json:"argumentsJson"`
	TimeoutMs      int    `json:"timeoutMs"`
}

// ToolResult is routed back to the orchestrator, correlated by ToolCallID.
type ToolResult struct {
	ConversationID string `json:"conversationId"`
	ToolCallID     string `json:"toolCallId"`
	Success        bool   `json:"success"`
	ResultJSON     string `json:"resultJson"`
}

// ToolStatus ∈ {running, completed, failed} mirrors §6.2's `tool` message.
type ToolStatus string

const (
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

// ToolStatusEvent is published on the llm.tool.* wire topic for gateway fan-out.
type ToolStatusEvent struct {
	ConversationID string          `json:"conversationId"`
	ToolCallID     string          `json:"toolCallId"`
	ToolName       string          `json:"name"`
	Status         ToolStatus      `json:"status"`
	ResultJSON     json.RawMessage `json:"result,omitempty"`
}

// ToolSchema is one tool's JSON-Schema-described argument contract, as
// advertised by a client (§3 Client Capability Registration) or registered
// server-side.
type ToolSchema struct {
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ClientCapabilities is produced by the gateway on client registration and
// consumed by the orchestrator's tool router to extend the per-conversation
// client-side tool catalog.
type ClientCapabilities struct {
	ConversationID string                `json:"conversationId"`
	ClientID       string                `json:"clientId"`
	Capabilities   map[string]ToolSchema `json:"capabilities"`
}

// DisconnectReason names why a session ended.
type DisconnectReason string

const (
	DisconnectNormal      DisconnectReason = "normal"
	DisconnectServerError DisconnectReason = "server_error"
	DisconnectTimeout     DisconnectReason = "timeout"
)

// ConnectionEvent is produced by the gateway when a client socket terminates
// and consumed by V, O, and T to trigger per-conversation cleanup.
type ConnectionEvent struct {
	Kind           string           `json:"kind"` // always "disconnected"
	ConversationID string           `json:"conversationId"`
	Reason         DisconnectReason `json:"reason"`
	TimestampMs    int64            `json:"timestampMs"`
}

// BargeInSignal is produced by V and consumed by O, T, and G.
type BargeInSignal struct {
	ConversationID string `json:"conversationId"`
	TimestampMs    int64  `json:"timestampMs"`
}

// AudioEnvelopeType discriminates the control markers framing a TTS utterance.
type AudioEnvelopeType string

const (
	AudioStreamStart AudioEnvelopeType = "audio_stream_start"
	AudioStreamEnd   AudioEnvelopeType = "audio_stream_end"
	AudioStreamError AudioEnvelopeType = "audio_stream_error"
)

// AudioEnvelope is a JSON control marker interleaved with binary audio frames
// on the per-conversation audio.out.<id> topic (§3 Audio Stream Envelope).
type AudioEnvelope struct {
	Type           AudioEnvelopeType `json:"type"`
	ConversationID string            `json:"conversationId"`
	SampleRate     int               `json:"sampleRate,omitempty"`
	Channels       int               `json:"channels,omitempty"`
	Format         string            `json:"format,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// HistoryTurn is one {role, content} entry in a conversation's history, as
// owned by the orchestrator and stored under the TTL key KeyHistory.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationConfig is the JSON config blob owned by the orchestrator and
// cached read-only by the other workers.
type ConversationConfig struct {
	SystemPrompt string `json:"systemPrompt"`
	VoiceID      string `json:"voiceId"`
	LLMModel     string `json:"llmModel"`
}
