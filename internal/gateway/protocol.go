package gateway

import "encoding/json"

// clientEnvelope reads the type discriminator of the two JSON frame shapes
// the client may send, per §6.1 Client → server.
type clientEnvelope struct {
	Type string `json:"type"`
}

// clientCapabilitiesFrame registers a client's dynamically executable tools.
type clientCapabilitiesFrame struct {
	Type         string                     `json:"type"`
	ClientID     string                     `json:"clientId"`
	Capabilities map[string]toolSchemaFrame `json:"capabilities"`
}

type toolSchemaFrame struct {
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// toolResponseFrame carries the result of a client-executed tool call.
type toolResponseFrame struct {
	Type           string          `json:"type"`
	ToolCallID     string          `json:"toolCallId"`
	ConversationID string          `json:"conversationId"`
	Success        bool            `json:"success"`
	Result         json.RawMessage `json:"result"`
}

// serverEvent is the generic shape of every JSON message G sends the client
// (§6.2). Only the fields relevant to a given type are populated.
type serverEvent struct {
	Type           string `json:"type"`
	Event          string `json:"event,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	TimestampMs    int64  `json:"timestampMs,omitempty"`
	Role           string `json:"role,omitempty"`
	Content        string `json:"content,omitempty"`
	ToolCallID     string `json:"toolCallId,omitempty"`
	Name           string `json:"name,omitempty"`
	ToolName       string `json:"toolName,omitempty"`
	Status         string `json:"status,omitempty"`
	Arguments      string `json:"arguments,omitempty"`
	TimeoutMs      int    `json:"timeoutMs,omitempty"`
	Result         any    `json:"result,omitempty"`
	SampleRate     int    `json:"sampleRate,omitempty"`
	Channels       int    `json:"channels,omitempty"`
	Format         string `json:"format,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}
