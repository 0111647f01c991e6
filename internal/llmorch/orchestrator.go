package llmorch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/convregistry"
	"github.com/duplexmesh/bargein/internal/metrics"
	"github.com/duplexmesh/bargein/internal/proto"
)

// toolCallPattern delimits an inline tool invocation in the assistant's
// token stream: <<<tool_call>>>{"name":"...","arguments":{...}}<<<end_tool_call>>>.
// The streaming LLM contract here is a plain token callback with no native
// function-calling support, so this marker is the only way a tool call is
// recognised. The default system prompt (Tunables.LLMSystemPrompt) does not
// describe the marker format to the model.
var toolCallPattern = regexp.MustCompile(`(?s)<<<tool_call>>>(.*?)<<<end_tool_call>>>`)

const toolCallOpenMarker = "<<<tool_call>>>"

// genState is the per-conversation generation handle: the cancellation
// function for the in-flight LLM stream and the next TTS sentence sequence
// number.
type genState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	seq    int
}

// Orchestrator turns final transcripts into streamed assistant turns,
// sentence-segmented TTS requests, and tool invocations, with exactly one
// in-flight generation per conversation.
type Orchestrator struct {
	b         broker.Broker
	llm       *AgentLLM
	engine    string
	tools     *ToolRouter
	tunables  config.Tunables
	tracer    Tracer
	generations *convregistry.Registry[genState]
}

// Tracer is the subset of trace.Tracer the orchestrator depends on, so
// tracing can be disabled in tests without a Postgres store.
type Tracer interface {
	StartTurn(conversationID string) string
	EndTurn(turnID string, durationMs float64, transcript, response, status string)
	RecordSpan(turnID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string)
}

// NoopTracer discards every call, for deployments with no trace store
// configured and for orchestrator tests that don't assert on tracing.
type NoopTracer struct{}

func (NoopTracer) StartTurn(conversationID string) string { return "" }
func (NoopTracer) EndTurn(turnID string, durationMs float64, transcript, response, status string) {
}
func (NoopTracer) RecordSpan(turnID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
}

// NewOrchestrator creates an LLM orchestrator wired to b.
func NewOrchestrator(b broker.Broker, llm *AgentLLM, engine string, tools *ToolRouter, tunables config.Tunables, tracer Tracer) *Orchestrator {
	return &Orchestrator{
		b:           b,
		llm:         llm,
		engine:      engine,
		tools:       tools,
		tunables:    tunables,
		tracer:      tracer,
		generations: convregistry.New(func() *genState { return &genState{} }),
	}
}

// Run subscribes to transcript, bargein, conn.events, client.capabilities,
// and client.tool.response, and drives generations until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler func(broker.Message)
	}{
		{proto.TopicTranscript, o.handleTranscript},
		{proto.TopicBargeIn, o.handleCancelSignal},
		{proto.TopicConnectionEvents, o.handleConnEvent},
		{proto.TopicClientCapabilities, o.handleClientCapabilities},
		{proto.TopicClientToolResponse, o.handleToolResponse},
	}

	var wg sync.WaitGroup
	for _, s := range subs {
		ch, cancel, err := o.b.Subscribe(ctx, s.topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		defer cancel()

		wg.Add(1)
		go func(ch <-chan broker.Message, handler func(broker.Message)) {
			defer wg.Done()
			for msg := range ch {
				handler(msg)
			}
		}(ch, s.handler)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (o *Orchestrator) handleTranscript(msg broker.Message) {
	var event proto.TranscriptEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return
	}
	if event.Kind != proto.TranscriptFinal {
		return
	}
	if strings.TrimSpace(event.Text) == "" {
		return
	}

	o.cancelGen(event.ConversationID)

	genCtx, cancel := context.WithTimeout(context.Background(), time.Duration(o.tunables.GenerationTimeoutSeconds)*time.Second)
	state := o.generations.GetOrCreate(event.ConversationID)
	state.mu.Lock()
	state.cancel = cancel
	state.mu.Unlock()

	go o.runGeneration(genCtx, event.ConversationID, event.Text, state)
}

func (o *Orchestrator) handleCancelSignal(msg broker.Message) {
	var event struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return
	}
	o.cancelGen(event.ConversationID)
}

func (o *Orchestrator) handleConnEvent(msg broker.Message) {
	var event proto.ConnectionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return
	}
	o.cancelGen(event.ConversationID)
	o.generations.Remove(event.ConversationID)
	o.tools.ForgetConversation(event.ConversationID)
}

func (o *Orchestrator) handleClientCapabilities(msg broker.Message) {
	var caps proto.ClientCapabilities
	if err := json.Unmarshal(msg.Payload, &caps); err != nil {
		return
	}
	o.tools.RegisterClientCapabilities(caps)
}

func (o *Orchestrator) handleToolResponse(msg broker.Message) {
	var result proto.ToolResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return
	}
	o.tools.HandleToolResult(result)
}

// cancelGen cancels a conversation's in-flight generation, if any. Idempotent.
func (o *Orchestrator) cancelGen(conversationID string) {
	state, ok := o.generations.Get(conversationID)
	if !ok {
		return
	}
	state.mu.Lock()
	cancel := state.cancel
	state.cancel = nil
	state.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) runGeneration(ctx context.Context, conversationID, transcript string, state *genState) {
	start := time.Now()
	turnID := o.tracer.StartTurn(conversationID)

	history, err := loadHistory(ctx, o.b, conversationID)
	if err != nil {
		slog.Warn("orchestrator: load history failed", "conversation_id", conversationID, "error", err)
	}
	cfg := loadConfig(ctx, o.b, conversationID, proto.ConversationConfig{
		SystemPrompt: o.tunables.LLMSystemPrompt,
		VoiceID:      o.tunables.TTSVoiceID,
		LLMModel:     o.tunables.LLMModel,
	})

	llmInput := formatInput(history, transcript)

	sentenceBuf := newSentenceBuffer(o.tunables.SentenceMaxChars, o.tunables.FirstSentenceMinChars)
	var codeFilt codeFilter
	var toolDetect strings.Builder
	inToolCall := false

	onToken := func(token string) {
		if ctx.Err() != nil {
			return
		}

		if inToolCall {
			toolDetect.WriteString(token)
			if m := toolCallPattern.FindStringSubmatch(toolDetect.String()); m != nil {
				o.handleInlineToolCall(ctx, conversationID, m[1], &history)
				toolDetect.Reset()
				inToolCall = false
			}
			return
		}

		if idx := strings.Index(token, toolCallOpenMarker); idx >= 0 {
			// Emit/speak the text preceding the marker, then start buffering
			// the tool call body.
			prefix := token[:idx]
			o.emitAssistantToken(ctx, conversationID, prefix)
			if filtered := codeFilt.Filter(prefix); filtered != "" {
				if sentence := sentenceBuf.Add(filtered); sentence != "" {
					state.seq++
					o.publishSentence(ctx, conversationID, sentence, cfg.VoiceID, state.seq)
				}
			}
			toolDetect.Reset()
			toolDetect.WriteString(token[idx+len(toolCallOpenMarker):])
			inToolCall = true
			return
		}

		o.emitAssistantToken(ctx, conversationID, token)
		filtered := codeFilt.Filter(token)
		if filtered == "" {
			return
		}
		if sentence := sentenceBuf.Add(filtered); sentence != "" {
			state.seq++
			o.publishSentence(ctx, conversationID, sentence, cfg.VoiceID, state.seq)
		}
	}

	result, err := o.llm.Chat(ctx, llmInput, cfg.SystemPrompt, cfg.LLMModel, o.engine, onToken)

	if ctx.Err() != nil {
		o.publishTTSStop(conversationID)
		o.tracer.EndTurn(turnID, float64(time.Since(start).Milliseconds()), transcript, "", "cancelled")
		return
	}

	if err != nil {
		metrics.Errors.WithLabelValues("llm", "generate").Inc()
		o.emitAssistantToken(ctx, conversationID, "I am temporarily unavailable.")
		o.publishTTSStop(conversationID)
		o.tracer.EndTurn(turnID, float64(time.Since(start).Milliseconds()), transcript, "", "error")
		return
	}

	if remainder := sentenceBuf.Flush(); remainder != "" {
		state.seq++
		o.publishSentence(ctx, conversationID, remainder, cfg.VoiceID, state.seq)
	}

	history = append(history, proto.HistoryTurn{Role: "user", Content: transcript})
	history = append(history, proto.HistoryTurn{Role: "assistant", Content: result.Text})
	if err = saveHistory(ctx, o.b, conversationID, history, o.tunables.ConversationScratchTTL); err != nil {
		slog.Warn("orchestrator: save history failed", "conversation_id", conversationID, "error", err)
	}

	o.tracer.RecordSpan(turnID, "llm", start, result.LatencyMs, transcript, result.Text, "ok", "")
	o.tracer.EndTurn(turnID, float64(time.Since(start).Milliseconds()), transcript, result.Text, "ok")

	state.mu.Lock()
	state.cancel = nil
	state.mu.Unlock()
}

func (o *Orchestrator) handleInlineToolCall(ctx context.Context, conversationID, body string, history *[]proto.HistoryTurn) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(body), &call); err != nil {
		slog.Warn("orchestrator: malformed inline tool call", "conversation_id", conversationID, "error", err)
		return
	}

	toolCallID := fmt.Sprintf("%s-%d", conversationID, time.Now().UnixNano())
	o.publishToolStatus(conversationID, toolCallID, call.Name, proto.ToolStatusRunning, nil)

	toolCtx, cancel := context.WithTimeout(ctx, time.Duration(o.tunables.ToolCallTimeoutSeconds)*time.Second)
	defer cancel()

	resultJSON, err := o.tools.Dispatch(toolCtx, conversationID, call.Name, string(call.Arguments))
	if err != nil {
		o.publishToolStatus(conversationID, toolCallID, call.Name, proto.ToolStatusFailed, json.RawMessage(`"`+err.Error()+`"`))
		*history = append(*history, proto.HistoryTurn{Role: "tool", Content: fmt.Sprintf("%s failed: %s", call.Name, err.Error())})
		return
	}
	o.publishToolStatus(conversationID, toolCallID, call.Name, proto.ToolStatusCompleted, json.RawMessage(resultJSON))
	*history = append(*history, proto.HistoryTurn{Role: "tool", Content: resultJSON})
}

func (o *Orchestrator) publishToolStatus(conversationID, toolCallID, name string, status proto.ToolStatus, result json.RawMessage) {
	event := proto.ToolStatusEvent{
		ConversationID: conversationID,
		ToolCallID:     toolCallID,
		ToolName:       name,
		Status:         status,
		ResultJSON:     result,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err = o.b.Publish(context.Background(), proto.TopicLLMTool, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicLLMTool).Inc()
	}
}

func (o *Orchestrator) emitAssistantToken(ctx context.Context, conversationID, content string) {
	if content == "" {
		return
	}
	token := proto.AssistantToken{ConversationID: conversationID, Role: "assistant", Content: content}
	payload, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err = o.b.Publish(ctx, proto.TopicLLMToken, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicLLMToken).Inc()
	}
}

func (o *Orchestrator) publishSentence(ctx context.Context, conversationID, text, voiceID string, seq int) {
	req := proto.SentenceRequest{ConversationID: conversationID, Text: text, VoiceID: voiceID, SequenceNumber: seq}
	payload, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err = o.b.Publish(ctx, proto.TopicTTSRequest, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicTTSRequest).Inc()
	}
}

func (o *Orchestrator) publishTTSStop(conversationID string) {
	msg := proto.TTSControlMessage{ConversationID: conversationID, Action: proto.TTSControlStop}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err = o.b.Publish(context.Background(), proto.TopicTTSControl, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicTTSControl).Inc()
	}
}
