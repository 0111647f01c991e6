package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duplexmesh/bargein/internal/broker"
	"github.com/duplexmesh/bargein/internal/config"
	"github.com/duplexmesh/bargein/internal/gateway"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	b := newBroker()
	defer b.Close()

	srv := gateway.NewServer(gateway.ServerConfig{
		Broker:    b,
		AuthToken: config.Str("GATEWAY_AUTH_TOKEN", ""),
	})

	addr := ":" + config.Str("GATEWAY_PORT", "8000")
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go awaitShutdown(httpSrv)

	slog.Info("gateway starting", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func newBroker() broker.Broker {
	if addr := config.Str("REDIS_ADDR", ""); addr != "" {
		return broker.NewRedis(addr, config.Str("REDIS_PASSWORD", ""), config.Int("REDIS_DB", 0))
	}
	slog.Warn("REDIS_ADDR unset, using in-memory broker (single-process only)")
	return broker.NewMemory()
}

func awaitShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
