package llmorch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/proto"
)

// scriptedLLM streams a fixed sequence of tokens back to whatever orchestrator
// calls Chat, as though a model were replying one token at a time.
type scriptedLLM struct {
	tokens []string
}

func (s scriptedLLM) Chat(ctx context.Context, userMessage, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	var full string
	for _, tok := range s.tokens {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		onToken(tok)
		full += tok
	}
	return &LLMResult{Text: full}, nil
}

// blockingLLM reports each Chat call on started, then streams nothing until
// its context is cancelled and reports that on cancelled, standing in for a
// generation that is still in flight.
type blockingLLM struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (l blockingLLM) Chat(ctx context.Context, userMessage, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	l.started <- struct{}{}
	<-ctx.Done()
	l.cancelled <- struct{}{}
	return nil, ctx.Err()
}

func newTestOrchestrator(t *testing.T, tokens []string) (*Orchestrator, broker.Broker) {
	t.Helper()
	b := broker.NewMemory()
	llm := NewAgentLLM("test", 2048)
	llm.RegisterRaw("test", scriptedLLM{tokens: tokens}, "test-model")
	tools := NewToolRouter(b, 5*time.Second)
	tunables := config.DefaultTunables()
	tunables.GenerationTimeoutSeconds = 5
	tunables.ToolCallTimeoutSeconds = 5
	tunables.SentenceMaxChars = 0
	tunables.FirstSentenceMinChars = 0
	o := NewOrchestrator(b, llm, "test", tools, tunables, NoopTracer{})
	return o, b
}

func publishFinalTranscript(t *testing.T, b broker.Broker, conversationID, text string) {
	t.Helper()
	payload, err := json.Marshal(proto.TranscriptEvent{
		Kind:           proto.TranscriptFinal,
		ConversationID: conversationID,
		Text:           text,
		TimestampMs:    1,
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), proto.TopicTranscript, payload))
}

func TestOrchestratorStreamsSentencesToTTS(t *testing.T) {
	o, b := newTestOrchestrator(t, []string{"Hello. ", "How are you? "})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	sentenceCh, unsub, err := b.Subscribe(ctx, proto.TopicTTSRequest)
	require.NoError(t, err)
	defer unsub()

	conversationID := "conv-orch-1"
	publishFinalTranscript(t, b, conversationID, "hi there")

	var sentences []string
	deadline := time.After(2 * time.Second)
	for len(sentences) < 2 {
		select {
		case msg := <-sentenceCh:
			var req proto.SentenceRequest
			require.NoError(t, json.Unmarshal(msg.Payload, &req))
			sentences = append(sentences, req.Text)
		case <-deadline:
			t.Fatalf("timed out waiting for sentences, got %v", sentences)
		}
	}
	assert.Equal(t, []string{"Hello.", "How are you?"}, sentences)
}

func TestOrchestratorSavesHistoryAfterGeneration(t *testing.T) {
	o, b := newTestOrchestrator(t, []string{"Fine, thanks."})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	conversationID := "conv-orch-2"
	publishFinalTranscript(t, b, conversationID, "how are you")

	require.Eventually(t, func() bool {
		raw, err := b.Get(context.Background(), proto.KeyHistory(conversationID))
		if err != nil {
			return false
		}
		var turns []proto.HistoryTurn
		if json.Unmarshal(raw, &turns) != nil {
			return false
		}
		return len(turns) == 2 && turns[0].Content == "how are you" && turns[1].Content == "Fine, thanks."
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOrchestratorCancelsPriorGenerationOnNewTranscript(t *testing.T) {
	o, b := newTestOrchestrator(t, nil)
	defer b.Close()
	started := make(chan struct{}, 2)
	cancelled := make(chan struct{}, 2)
	o.llm.RegisterRaw("test", blockingLLM{started: started, cancelled: cancelled}, "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	conversationID := "conv-orch-3"
	publishFinalTranscript(t, b, conversationID, "first turn")

	require.Eventually(t, func() bool {
		return len(started) == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := o.generations.Get(conversationID)
	require.True(t, ok)

	publishFinalTranscript(t, b, conversationID, "second turn")

	require.Eventually(t, func() bool {
		return len(cancelled) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorConnEventClearsGeneration(t *testing.T) {
	o, b := newTestOrchestrator(t, []string{"hi"})
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	conversationID := "conv-orch-4"
	publishFinalTranscript(t, b, conversationID, "hello")
	require.Eventually(t, func() bool {
		_, ok := o.generations.Get(conversationID)
		return ok
	}, time.Second, 5*time.Millisecond)

	event, err := json.Marshal(proto.ConnectionEvent{ConversationID: conversationID, Reason: proto.DisconnectNormal})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), proto.TopicConnectionEvents, event))

	require.Eventually(t, func() bool {
		_, ok := o.generations.Get(conversationID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
