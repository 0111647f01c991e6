package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/metrics"
	"github.com/duplexmesh/bargein/internal/proto"
)

// Session is one logical session actor per socket: it owns a ConversationId
// and runs the six concurrent duties named in §4.2 until the socket closes
// or any duty errors.
type Session struct {
	b              broker.Broker
	conn           *websocket.Conn
	conversationID string

	writeMu sync.Mutex
}

// NewSession creates a session actor for an accepted socket.
func NewSession(b broker.Broker, conn *websocket.Conn) *Session {
	return &Session{
		b:              b,
		conn:           conn,
		conversationID: uuid.NewString(),
	}
}

// Run drives the session to completion. It returns once the socket closes,
// a duty errors, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.ConversationsActive.Inc()
	metrics.ConversationsTotal.Inc()
	defer metrics.ConversationsActive.Dec()

	slog.Info("session started", "conversation_id", s.conversationID)

	s.send(serverEvent{Type: "system_event", Event: "conversation_started", ConversationID: s.conversationID})

	var wg sync.WaitGroup
	var dutyFailed atomic.Bool
	duties := []func(context.Context){
		s.transcriptEgress,
		s.tokenEgress,
		s.toolStatusEgress,
		s.clientToolRequestEgress,
		s.audioEgress,
		s.bargeInEgress,
	}
	for _, duty := range duties {
		wg.Add(1)
		go func(d func(context.Context)) {
			defer wg.Done()
			d(ctx)
			// A duty that returns while the session is still live has lost
			// its subscription or failed; that ends the whole session.
			if ctx.Err() == nil {
				dutyFailed.Store(true)
				cancel()
			}
		}(duty)
	}

	reason := s.ingress(ctx)
	if dutyFailed.Load() {
		reason = proto.DisconnectServerError
	}

	cancel()
	wg.Wait()

	s.publishDisconnect(reason)
	slog.Info("session ended", "conversation_id", s.conversationID, "reason", reason)
}

// ingress reads frames off the socket until it closes or ctx is cancelled,
// publishing binary frames to audio.in and dispatching JSON control frames.
// It returns the disconnect reason to report on exit.
func (s *Session) ingress(ctx context.Context) proto.DisconnectReason {
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return proto.DisconnectNormal
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return proto.DisconnectNormal
			}
			slog.Info("session read failed", "conversation_id", s.conversationID, "error", err)
			return proto.DisconnectServerError
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudioFrame(ctx, data)
		case websocket.TextMessage:
			s.handleControlFrame(ctx, data)
		}
	}
}

func (s *Session) handleAudioFrame(ctx context.Context, data []byte) {
	msg := proto.AudioInMessage{
		ConversationID: s.conversationID,
		Codec:          "pcm",
		SampleRate:     16000,
		Audio:          data,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	metrics.AudioChunks.Inc()
	if err = s.b.Publish(ctx, proto.TopicAudioIn, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicAudioIn).Inc()
	}
}

func (s *Session) handleControlFrame(ctx context.Context, data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "client_capabilities":
		s.handleClientCapabilities(ctx, data)
	case "tool_response":
		s.handleToolResponse(ctx, data)
	}
}

func (s *Session) handleClientCapabilities(ctx context.Context, data []byte) {
	var frame clientCapabilitiesFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	caps := make(map[string]proto.ToolSchema, len(frame.Capabilities))
	for name, schema := range frame.Capabilities {
		caps[name] = proto.ToolSchema{Description: schema.Description, Parameters: schema.Parameters}
	}

	payload, err := json.Marshal(proto.ClientCapabilities{
		ConversationID: s.conversationID,
		ClientID:       frame.ClientID,
		Capabilities:   caps,
	})
	if err != nil {
		return
	}
	if err = s.b.Publish(ctx, proto.TopicClientCapabilities, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicClientCapabilities).Inc()
	}
}

func (s *Session) handleToolResponse(ctx context.Context, data []byte) {
	var frame toolResponseFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	// Client responses for a toolCallId this session never issued are
	// dropped by the tool router itself (§4.2 failure semantics); G just forwards.
	payload, err := json.Marshal(proto.ToolResult{
		ConversationID: s.conversationID,
		ToolCallID:     frame.ToolCallID,
		Success:        frame.Success,
		ResultJSON:     string(frame.Result),
	})
	if err != nil {
		return
	}
	if err = s.b.Publish(ctx, proto.TopicClientToolResponse, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicClientToolResponse).Inc()
	}
}

func (s *Session) transcriptEgress(ctx context.Context) {
	s.forward(ctx, proto.TopicTranscript, func(msg broker.Message) {
		var ev proto.TranscriptEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.ConversationID != s.conversationID {
			return
		}
		evType := "partial_transcript"
		if ev.Kind == proto.TranscriptFinal {
			evType = "final_transcript"
		}
		s.send(serverEvent{Type: evType, ConversationID: ev.ConversationID, Transcript: ev.Text, TimestampMs: ev.TimestampMs})
	})
}

func (s *Session) tokenEgress(ctx context.Context) {
	s.forward(ctx, proto.TopicLLMToken, func(msg broker.Message) {
		var tok proto.AssistantToken
		if err := json.Unmarshal(msg.Payload, &tok); err != nil || tok.ConversationID != s.conversationID {
			return
		}
		s.send(serverEvent{Type: "token", ConversationID: tok.ConversationID, Role: tok.Role, Content: tok.Content})
	})
}

func (s *Session) toolStatusEgress(ctx context.Context) {
	s.forward(ctx, proto.TopicLLMTool, func(msg broker.Message) {
		var ev proto.ToolStatusEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.ConversationID != s.conversationID {
			return
		}
		s.send(serverEvent{
			Type: "tool", ConversationID: ev.ConversationID, ToolCallID: ev.ToolCallID,
			Name: ev.ToolName, Status: string(ev.Status), Result: ev.ResultJSON,
		})
	})
}

// clientToolRequestEgress forwards the orchestrator's client-directed tool
// asks (a different topic than the status events above) as the same §6.2
// `tool_request` frame.
func (s *Session) clientToolRequestEgress(ctx context.Context) {
	s.forward(ctx, proto.TopicClientToolRequest, func(msg broker.Message) {
		var inv proto.ToolInvocation
		if err := json.Unmarshal(msg.Payload, &inv); err != nil || inv.ConversationID != s.conversationID {
			return
		}
		s.send(serverEvent{
			Type: "tool_request", ConversationID: inv.ConversationID, ToolCallID: inv.ToolCallID,
			ToolName: inv.ToolName, Arguments: inv.ArgumentsJSON, TimeoutMs: inv.TimeoutMs,
		})
	})
}

// audioEgress forwards both binary PCM chunks and JSON envelope control
// markers verbatim, in arrival order, per §4.2 duty 5's FIFO requirement.
func (s *Session) audioEgress(ctx context.Context) {
	topic := proto.TopicAudioOut(s.conversationID)
	ch, cancel, err := s.b.Subscribe(ctx, topic)
	if err != nil {
		metrics.BrokerSubscribeFailures.WithLabelValues(topic).Inc()
		return
	}
	defer cancel()

	for msg := range ch {
		var env proto.AudioEnvelope
		if err := json.Unmarshal(msg.Payload, &env); err == nil && env.Type != "" {
			s.send(serverEvent{
				Type: string(env.Type), ConversationID: s.conversationID, SampleRate: env.SampleRate,
				Channels: env.Channels, Format: env.Format, Reason: env.Reason, Error: env.Error,
			})
			continue
		}
		s.sendBinary(msg.Payload)
	}
}

func (s *Session) bargeInEgress(ctx context.Context) {
	s.forward(ctx, proto.TopicBargeIn, func(msg broker.Message) {
		var sig proto.BargeInSignal
		if err := json.Unmarshal(msg.Payload, &sig); err != nil || sig.ConversationID != s.conversationID {
			return
		}
		s.send(serverEvent{Type: "barge_in_notification", ConversationID: sig.ConversationID, TimestampMs: sig.TimestampMs})
	})
}

// forward subscribes to topic and calls handle for each message until ctx
// is cancelled; handle is responsible for filtering by ConversationId.
func (s *Session) forward(ctx context.Context, topic string, handle func(broker.Message)) {
	ch, cancel, err := s.b.Subscribe(ctx, topic)
	if err != nil {
		metrics.BrokerSubscribeFailures.WithLabelValues(topic).Inc()
		return
	}
	defer cancel()

	for msg := range ch {
		handle(msg)
	}
}

func (s *Session) send(ev serverEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err = s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Debug("session write failed", "conversation_id", s.conversationID, "error", err)
	}
}

func (s *Session) sendBinary(data []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		slog.Debug("session write failed", "conversation_id", s.conversationID, "error", err)
	}
}

func (s *Session) publishDisconnect(reason proto.DisconnectReason) {
	payload, err := json.Marshal(proto.ConnectionEvent{
		Kind: "disconnected", ConversationID: s.conversationID, Reason: reason, TimestampMs: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = s.b.Publish(ctx, proto.TopicConnectionEvents, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicConnectionEvents).Inc()
	}
}
