package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// Tunables holds the knobs shared by all four workers that may eventually
// move to a config service; for now a JSON file keeps them out of env vars.
type Tunables struct {
	VADSpeechThresholdDB  float64 `json:"vad_speech_threshold_db"`
	VADSilenceTimeoutMs   int     `json:"vad_silence_timeout_ms"`
	VADMinSpeechMs        int     `json:"vad_min_speech_ms"`
	BargeInDebounce       time.Duration `json:"-"`
	BargeInDebounceMs     int     `json:"barge_in_debounce_ms"`
	BargeInMinSpeechMs    int     `json:"barge_in_min_speech_ms"`
	ASRConfidenceThreshold float64 `json:"asr_confidence_threshold"`
	ASRPartialIntervalMs  int     `json:"asr_partial_interval_ms"`

	LLMSystemPrompt        string `json:"llm_system_prompt"`
	LLMMaxTokens           int    `json:"llm_max_tokens"`
	LLMModel               string `json:"llm_model"`
	SentenceMaxChars       int    `json:"sentence_max_chars"`
	FirstSentenceMinChars  int    `json:"first_sentence_min_chars"`
	ToolCallTimeoutSeconds int    `json:"tool_call_timeout_seconds"`
	GenerationTimeoutSeconds int  `json:"generation_timeout_seconds"`

	TTSVoiceID               string `json:"tts_voice_id"`
	TTSSynthesisTimeoutSeconds int  `json:"tts_synthesis_timeout_seconds"`
	TTSActiveRefreshSeconds    int  `json:"tts_active_refresh_seconds"`
	TextNormalization          bool `json:"text_normalization"`

	ConversationScratchTTL time.Duration `json:"-"`
	ConversationScratchTTLSeconds int    `json:"conversation_scratch_ttl_seconds"`
}

// DefaultTunables returns sensible defaults matching the values named in
// the distilled spec's concurrency and component design sections.
func DefaultTunables() Tunables {
	return Tunables{
		VADSpeechThresholdDB:  -30,
		VADSilenceTimeoutMs:   500,
		VADMinSpeechMs:        150,
		BargeInDebounceMs:     1000,
		BargeInMinSpeechMs:    150,
		ASRConfidenceThreshold: 0.6,
		ASRPartialIntervalMs:  500,

		LLMSystemPrompt:        "You are a helpful, concise voice assistant. Keep replies short and conversational.",
		LLMMaxTokens:           2048,
		LLMModel:               "",
		SentenceMaxChars:       240,
		FirstSentenceMinChars:  30,
		ToolCallTimeoutSeconds: 30,
		GenerationTimeoutSeconds: 60,

		TTSVoiceID:                 "default",
		TTSSynthesisTimeoutSeconds: 30,
		TTSActiveRefreshSeconds:    10,
		TextNormalization:          true,

		ConversationScratchTTLSeconds: 3600,
	}
}

// LoadTunables reads path if present, otherwise returns defaults. A present
// but malformed file falls back to defaults rather than a partially
// populated struct.
func LoadTunables(path string) Tunables {
	t := DefaultTunables()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no tunables file, using defaults", "path", path)
		return resolveDurations(t)
	}
	if err = json.Unmarshal(data, &t); err != nil {
		slog.Warn("bad tunables file, using defaults", "path", path, "error", err)
		return resolveDurations(DefaultTunables())
	}
	slog.Info("loaded tunables", "path", path)
	return resolveDurations(t)
}

// resolveDurations derives the time.Duration fields from their JSON-friendly
// millisecond/second counterparts after unmarshaling.
func resolveDurations(t Tunables) Tunables {
	t.BargeInDebounce = time.Duration(t.BargeInDebounceMs) * time.Millisecond
	t.ConversationScratchTTL = time.Duration(t.ConversationScratchTTLSeconds) * time.Second
	return t
}
