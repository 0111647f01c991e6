package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/llmorch"
	"github.com/duplexmesh/bargein/internal/trace"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	tunables := config.LoadTunables(config.Str("TUNABLES_PATH", "tunables.json"))
	b := newBroker()
	defer b.Close()

	engine := config.Str("LLM_ENGINE", "ollama")
	llm := initLLM(tunables)

	toolTimeout := time.Duration(tunables.ToolCallTimeoutSeconds) * time.Second
	tools := llmorch.NewToolRouter(b, toolTimeout)
	if err := tools.RegisterServerTool(llmorch.CurrentTimeTool{}); err != nil {
		slog.Error("register server tool failed", "tool", "current_time", "error", err)
	}

	tracer, closeTracer := initTracer()
	defer closeTracer()

	orch := llmorch.NewOrchestrator(b, llm, engine, tools, tunables, tracer)

	ctx, cancel := context.WithCancel(context.Background())
	go awaitShutdown(cancel)

	slog.Info("orchestrator starting", "llm_engine", engine)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("orchestrator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("orchestrator stopped")
}

func initLLM(tunables config.Tunables) *llmorch.AgentLLM {
	ollamaURL := config.Str("OLLAMA_URL", "http://localhost:11434")
	ollamaModel := config.Str("OLLAMA_MODEL", "llama3.2:3b")
	openaiAPIKey := config.Str("OPENAI_API_KEY", "")
	openaiURL := config.Str("OPENAI_URL", "https://api.openai.com")
	openaiModel := config.Str("OPENAI_MODEL", "gpt-4.1-nano")
	anthropicAPIKey := config.Str("ANTHROPIC_API_KEY", "")
	anthropicURL := config.Str("ANTHROPIC_URL", "https://api.anthropic.com")
	anthropicModel := config.Str("ANTHROPIC_MODEL", "claude-sonnet-4-5")
	llmPoolSize := config.Int("LLM_POOL_SIZE", 50)

	llm := llmorch.NewAgentLLM("ollama", tunables.LLMMaxTokens)

	llm.RegisterRaw("ollama", llmorch.NewOllamaLLMClient(
		ollamaURL, ollamaModel, tunables.LLMSystemPrompt, tunables.LLMMaxTokens, llmPoolSize,
	), ollamaModel)

	if openaiAPIKey != "" {
		llm.Register("openai", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(openaiURL + "/v1/"),
			APIKey:       param.NewOpt(openaiAPIKey),
			UseResponses: param.NewOpt(true),
		}), openaiModel)
	}
	if anthropicAPIKey != "" {
		llm.Register("anthropic", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(anthropicURL + "/v1/"),
			APIKey:       param.NewOpt(anthropicAPIKey),
			UseResponses: param.NewOpt(false),
		}), anthropicModel)
	}

	return llm
}

func initTracer() (llmorch.Tracer, func()) {
	postgresURL := config.Str("POSTGRES_URL", "")
	if postgresURL == "" {
		return llmorch.NoopTracer{}, func() {}
	}
	store, err := trace.Open(postgresURL)
	if err != nil {
		slog.Error("trace store open failed", "error", err)
		return llmorch.NoopTracer{}, func() {}
	}
	slog.Info("tracing enabled", "postgres", postgresURL)
	tracer := trace.NewTracer(store)
	return tracer, tracer.Close
}

func newBroker() broker.Broker {
	if addr := config.Str("REDIS_ADDR", ""); addr != "" {
		return broker.NewRedis(addr, config.Str("REDIS_PASSWORD", ""), config.Int("REDIS_DB", 0))
	}
	slog.Warn("REDIS_ADDR unset, using in-memory broker (single-process only)")
	return broker.NewMemory()
}

func awaitShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
}
