package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/ttsworker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	tunables := config.LoadTunables(config.Str("TUNABLES_PATH", "tunables.json"))
	b := newBroker()
	defer b.Close()

	piperURL := config.Str("PIPER_URL", "")
	ttsPoolSize := config.Int("TTS_POOL_SIZE", 50)
	engine := config.Str("TTS_ENGINE", "piper")

	backends := map[string]ttsworker.Synthesizer{}
	if piperURL != "" {
		backends[engine] = ttsworker.NewClient(piperURL, ttsPoolSize)
	}
	router := ttsworker.NewRouter(backends, engine)

	worker := ttsworker.NewWorker(b, router, engine, tunables)

	ctx, cancel := context.WithCancel(context.Background())
	go awaitShutdown(cancel)

	slog.Info("tts worker starting", "tts_engine", engine)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("tts worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("tts worker stopped")
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
