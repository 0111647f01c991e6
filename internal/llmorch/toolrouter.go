package llmorch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/metrics"
	"github.com/duplexmesh/bargein/internal/proto"
)

// ServerTool is a tool the orchestrator executes in-process.
type ServerTool interface {
	Name() string
	Description() string
	// ArgsSchema returns a zero-value pointer to the tool's argument struct,
	// reflected into JSON Schema for registration and validation.
	ArgsSchema() any
	Call(ctx context.Context, argumentsJSON string) (resultJSON string, err error)
}

// ToolRouter dispatches tool invocations to either an in-process ServerTool
// or, for client-registered capabilities, a request/response round trip over
// the broker's client.tool.request / client.tool.response topics.
type ToolRouter struct {
	b       broker.Broker
	timeout time.Duration

	mu          sync.Mutex
	serverTools map[string]ServerTool
	schemas     map[string]json.RawMessage // cached server tool schemas
	clientTools map[string]map[string]proto.ToolSchema

	pendingMu sync.Mutex
	pending   map[string]chan proto.ToolResult
}

// NewToolRouter creates a tool router backed by b, resolving a client-side
// tool's round trip after timeout.
func NewToolRouter(b broker.Broker, timeout time.Duration) *ToolRouter {
	return &ToolRouter{
		b:           b,
		timeout:     timeout,
		serverTools: make(map[string]ServerTool),
		schemas:     make(map[string]json.RawMessage),
		clientTools: make(map[string]map[string]proto.ToolSchema),
		pending:     make(map[string]chan proto.ToolResult),
	}
}

// RegisterServerTool adds an in-process tool, reflecting its argument
// schema once at registration time.
func (r *ToolRouter) RegisterServerTool(tool ServerTool) error {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(tool.ArgsSchema())
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("tool schema %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.serverTools[tool.Name()] = tool
	r.schemas[tool.Name()] = raw
	return nil
}

// RegisterClientCapabilities extends one conversation's client-side tool
// catalog, per §3 Client Capability Registration.
func (r *ToolRouter) RegisterClientCapabilities(caps proto.ClientCapabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	catalog, ok := r.clientTools[caps.ConversationID]
	if !ok {
		catalog = make(map[string]proto.ToolSchema)
		r.clientTools[caps.ConversationID] = catalog
	}
	for name, schema := range caps.Capabilities {
		catalog[name] = schema
	}
}

// ForgetConversation drops a conversation's client-side tool catalog.
func (r *ToolRouter) ForgetConversation(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clientTools, conversationID)
}

// HasTool reports whether toolName is known, server-side or for this
// conversation's client catalog.
func (r *ToolRouter) HasTool(conversationID, toolName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.serverTools[toolName]; ok {
		return true
	}
	_, ok := r.clientTools[conversationID][toolName]
	return ok
}

// Dispatch validates arguments against the tool's declared schema, then
// calls a server tool in-process or round-trips a client tool over the
// broker. Returns the result JSON, or an error on validation failure,
// timeout, or a tool-reported failure.
func (r *ToolRouter) Dispatch(ctx context.Context, conversationID, toolName, argumentsJSON string) (string, error) {
	r.mu.Lock()
	tool, isServer := r.serverTools[toolName]
	schema, hasSchema := r.schemas[toolName]
	clientSchema, isClient := r.clientTools[conversationID][toolName]
	r.mu.Unlock()

	switch {
	case isServer:
		if hasSchema {
			if err := validateArguments(schema, argumentsJSON); err != nil {
				metrics.ToolCallsTotal.WithLabelValues(toolName, "invalid_args").Inc()
				return "", err
			}
		}
		result, err := tool.Call(ctx, argumentsJSON)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, outcome).Inc()
		return result, err

	case isClient:
		if len(clientSchema.Parameters) > 0 {
			if err := validateArguments(clientSchema.Parameters, argumentsJSON); err != nil {
				metrics.ToolCallsTotal.WithLabelValues(toolName, "invalid_args").Inc()
				return "", err
			}
		}
		result, err := r.dispatchClient(ctx, conversationID, toolName, argumentsJSON)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, outcome).Inc()
		return result, err

	default:
		return "", fmt.Errorf("unknown tool %q", toolName)
	}
}

func (r *ToolRouter) dispatchClient(ctx context.Context, conversationID, toolName, argumentsJSON string) (string, error) {
	toolCallID := uuid.NewString()

	ch := make(chan proto.ToolResult, 1)
	r.pendingMu.Lock()
	r.pending[toolCallID] = ch
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, toolCallID)
		r.pendingMu.Unlock()
	}()

	invocation := proto.ToolInvocation{
		ConversationID: conversationID,
		ToolCallID:     toolCallID,
		ToolName:       toolName,
		ArgumentsJSON:  argumentsJSON,
		TimeoutMs:      int(r.timeout.Milliseconds()),
	}
	payload, err := json.Marshal(invocation)
	if err != nil {
		return "", fmt.Errorf("marshal tool invocation: %w", err)
	}
	if err = r.b.Publish(ctx, proto.TopicClientToolRequest, payload); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues(proto.TopicClientToolRequest).Inc()
		return "", fmt.Errorf("publish tool invocation: %w", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("tool %q timed out after %s", toolName, r.timeout)
	case result := <-ch:
		if !result.Success {
			return "", fmt.Errorf("tool %q failed: %s", toolName, gjson.Get(result.ResultJSON, "error").String())
		}
		return result.ResultJSON, nil
	}
}

// HandleToolResult delivers a client tool result to its waiting Dispatch
// call, discarding duplicates and results for unknown toolCallIds (the
// call may have already timed out).
func (r *ToolRouter) HandleToolResult(result proto.ToolResult) {
	r.pendingMu.Lock()
	ch, ok := r.pending[result.ToolCallID]
	r.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

func validateArguments(schema json.RawMessage, argumentsJSON string) error {
	if argumentsJSON == "" {
		argumentsJSON = "{}"
	}
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	docLoader := gojsonschema.NewStringLoader(argumentsJSON)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid arguments: %v", result.Errors())
	}
	return nil
}
