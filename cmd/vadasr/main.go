package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duplexmesh/bargein/internal/audio"
	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/vadasr"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	tunables := config.LoadTunables(config.Str("TUNABLES_PATH", "tunables.json"))
	b := newBroker()
	defer b.Close()

	whisperURL := config.Str("WHISPER_SERVER_URL", "")
	asrPoolSize := config.Int("ASR_POOL_SIZE", 50)
	engine := config.Str("ASR_ENGINE", "whisper-server")

	backends := map[string]vadasr.Transcriber{}
	if whisperURL != "" {
		backends[engine] = vadasr.NewClient(whisperURL, asrPoolSize)
	}
	router := vadasr.NewRouter(backends, engine)

	vadCfg := audio.DefaultVADConfig()
	vadCfg.SpeechThresholdDB = tunables.VADSpeechThresholdDB
	vadCfg.SilenceTimeout = time.Duration(tunables.VADSilenceTimeoutMs) * time.Millisecond
	vadCfg.MinSpeechDuration = time.Duration(tunables.VADMinSpeechMs) * time.Millisecond

	worker := vadasr.NewWorker(b, router, engine, tunables, vadCfg)

	ctx, cancel := context.WithCancel(context.Background())
	go awaitShutdown(cancel)

	slog.Info("vadasr worker starting", "asr_engine", engine)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("vadasr worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("vadasr worker stopped")
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
