package llmorch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/proto"
)

func TestLoadHistoryReturnsEmptyWhenAbsent(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()

	history, err := loadHistory(context.Background(), b, "conv-x")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSaveThenLoadHistoryRoundTrips(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	ctx := context.Background()

	turns := []proto.HistoryTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	require.NoError(t, saveHistory(ctx, b, "conv-y", turns, time.Minute))

	got, err := loadHistory(ctx, b, "conv-y")
	require.NoError(t, err)
	assert.Equal(t, turns, got)
}

func TestLoadConfigFallsBackWhenAbsent(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()

	fallback := proto.ConversationConfig{SystemPrompt: "default prompt"}
	got := loadConfig(context.Background(), b, "conv-z", fallback)
	assert.Equal(t, fallback, got)
}

func TestFormatInputWithNoHistoryReturnsCurrentVerbatim(t *testing.T) {
	assert.Equal(t, "hello", formatInput(nil, "hello"))
}

func TestFormatInputRendersHistoryByRole(t *testing.T) {
	history := []proto.HistoryTurn{
		{Role: "user", Content: "what's the weather"},
		{Role: "tool", Content: `{"temp":72}`},
		{Role: "assistant", Content: "It's 72 degrees."},
	}
	got := formatInput(history, "thanks")
	assert.Contains(t, got, "User: what's the weather\n")
	assert.Contains(t, got, "Tool result: {\"temp\":72}\n")
	assert.Contains(t, got, "Assistant: It's 72 degrees.\n")
	assert.Contains(t, got, "User: thanks")
}
