// Package proto defines the messages exchanged over the broker topics and
// the client-facing JSON message set, per the wire contract in spec §6.3 and §6.2.
package proto

import "fmt"

// Topic wire names, exactly as named in the distilled spec's §6.3 table.
const (
	TopicAudioIn             = "audio_stream_channel"
	TopicTranscript          = "transcript_channel"
	TopicLLMToken            = "llm_token_channel"
	TopicLLMTool             = "llm_tool_call_channel"
	TopicClientToolRequest   = "client_tool_request"
	TopicClientToolResponse  = "client_tool_response"
	TopicClientCapabilities  = "client_capabilities"
	TopicTTSRequest          = "tts_request_channel"
	TopicTTSControl          = "tts_control_channel"
	TopicBargeIn             = "barge_in_notifications"
	TopicConnectionEvents    = "connection_events"
	audioOutPrefix           = "audio_output_stream:"
)

// TopicAudioOut returns the per-conversation TTS audio topic name (§6.3: audio.out.<id>).
func TopicAudioOut(conversationID string) string {
	return audioOutPrefix + conversationID
}

// Key name templates for the broker's TTL key/value store (§4.1).
const (
	keyConfigPrefix    = "conversation.config:"
	keyHistoryPrefix   = "conversation.history:"
	keyTTSActivePrefix = "ttsActive:"
)

// KeyConfig returns the TTL key holding a conversation's JSON config blob.
func KeyConfig(conversationID string) string { return keyConfigPrefix + conversationID }

// KeyHistory returns the TTL key holding a conversation's JSON history array.
func KeyHistory(conversationID string) string { return keyHistoryPrefix + conversationID }

// KeyTTSActive returns the presence-flag TTL key for a conversation's active TTS stream.
func KeyTTSActive(conversationID string) string { return keyTTSActivePrefix + conversationID }

// ConversationIDFromAudioOut extracts the conversation ID from an audio.out.<id> topic name.
func ConversationIDFromAudioOut(topic string) (string, error) {
	if len(topic) <= len(audioOutPrefix) || topic[:len(audioOutPrefix)] != audioOutPrefix {
		return "", fmt.Errorf("not an audio output topic: %s", topic)
	}
	return topic[len(audioOutPrefix):], nil
}
