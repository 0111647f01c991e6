package llmorch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/proto"
)

type echoArgs struct {
	Message string `json:"message"`
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes the message argument back." }
func (echoTool) ArgsSchema() any     { return &echoArgs{} }
func (echoTool) Call(ctx context.Context, argumentsJSON string) (string, error) {
	var args echoArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", err
	}
	return `{"echo":"` + args.Message + `"}`, nil
}

func TestToolRouterDispatchesServerTool(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)
	require.NoError(t, r.RegisterServerTool(echoTool{}))

	result, err := r.Dispatch(context.Background(), "conv-1", "echo", `{"message":"hi"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"hi"}`, result)
}

func TestToolRouterRejectsInvalidArguments(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)
	require.NoError(t, r.RegisterServerTool(echoTool{}))

	_, err := r.Dispatch(context.Background(), "conv-1", "echo", `{"message":42}`)
	assert.Error(t, err)
}

func TestToolRouterUnknownToolErrors(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)

	_, err := r.Dispatch(context.Background(), "conv-1", "does_not_exist", `{}`)
	assert.Error(t, err)
}

func TestToolRouterHasToolChecksBothTables(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)
	require.NoError(t, r.RegisterServerTool(echoTool{}))

	assert.True(t, r.HasTool("conv-1", "echo"))
	assert.False(t, r.HasTool("conv-1", "lookup_weather"))

	r.RegisterClientCapabilities(proto.ClientCapabilities{
		ConversationID: "conv-1",
		ClientID:       "client-a",
		Capabilities: map[string]proto.ToolSchema{
			"lookup_weather": {Description: "Looks up the weather."},
		},
	})
	assert.True(t, r.HasTool("conv-1", "lookup_weather"))
	assert.False(t, r.HasTool("conv-2", "lookup_weather"))

	r.ForgetConversation("conv-1")
	assert.False(t, r.HasTool("conv-1", "lookup_weather"))
}

func TestToolRouterClientDispatchTimesOutWithoutResponse(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, 20*time.Millisecond)
	r.RegisterClientCapabilities(proto.ClientCapabilities{
		ConversationID: "conv-1",
		Capabilities:   map[string]proto.ToolSchema{"noop": {}},
	})

	_, err := r.Dispatch(context.Background(), "conv-1", "noop", `{}`)
	assert.ErrorContains(t, err, "timed out")
}

func TestToolRouterClientDispatchDeliversResult(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)
	r.RegisterClientCapabilities(proto.ClientCapabilities{
		ConversationID: "conv-1",
		Capabilities:   map[string]proto.ToolSchema{"noop": {}},
	})

	ch, cancel, err := b.Subscribe(context.Background(), proto.TopicClientToolRequest)
	require.NoError(t, err)
	defer cancel()

	go func() {
		msg := <-ch
		var inv proto.ToolInvocation
		require.NoError(t, json.Unmarshal(msg.Payload, &inv))
		r.HandleToolResult(proto.ToolResult{
			ConversationID: inv.ConversationID,
			ToolCallID:     inv.ToolCallID,
			Success:        true,
			ResultJSON:     `{"ok":true}`,
		})
	}()

	result, err := r.Dispatch(context.Background(), "conv-1", "noop", `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result)
}

func TestToolRouterHandleToolResultIgnoresUnknownCallID(t *testing.T) {
	b := broker.NewMemory()
	defer b.Close()
	r := NewToolRouter(b, time.Second)

	// Should not panic or block when no Dispatch is waiting.
	r.HandleToolResult(proto.ToolResult{ToolCallID: "never-issued", Success: true})
}
