package llmorch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/proto"
)

// loadHistory reads a conversation's history turns from the scratch store,
// treating an absent key as an empty history rather than an error.
func loadHistory(ctx context.Context, b broker.Broker, conversationID string) ([]proto.HistoryTurn, error) {
	raw, err := b.Get(ctx, proto.KeyHistory(conversationID))
	if err == broker.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var history []proto.HistoryTurn
	if err = json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}

func saveHistory(ctx context.Context, b broker.Broker, conversationID string, history []proto.HistoryTurn, ttl time.Duration) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return b.Set(ctx, proto.KeyHistory(conversationID), raw, ttl)
}

// loadConfig reads a conversation's config blob, falling back to defaults
// derived from the orchestrator's own tunables when absent.
func loadConfig(ctx context.Context, b broker.Broker, conversationID string, fallback proto.ConversationConfig) proto.ConversationConfig {
	raw, err := b.Get(ctx, proto.KeyConfig(conversationID))
	if err != nil {
		return fallback
	}
	var cfg proto.ConversationConfig
	if err = json.Unmarshal(raw, &cfg); err != nil {
		return fallback
	}
	return cfg
}

// formatInput renders conversation history as a plain-text transcript ahead
// of the current user turn, since the streaming LLM contract here takes one
// user message rather than a structured message list.
func formatInput(history []proto.HistoryTurn, current string) string {
	if len(history) == 0 {
		return current
	}
	var b strings.Builder
	for _, turn := range history {
		switch turn.Role {
		case "user":
			fmt.Fprintf(&b, "User: %s\n", turn.Content)
		case "tool":
			fmt.Fprintf(&b, "Tool result: %s\n", turn.Content)
		default:
			fmt.Fprintf(&b, "Assistant: %s\n", turn.Content)
		}
	}
	fmt.Fprintf(&b, "User: %s", current)
	return b.String()
}
