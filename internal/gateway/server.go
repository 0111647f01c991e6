package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duplexmesh/bargein/internal/broker"
)

const healthCheckTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServerConfig holds the dependencies shared by every accepted session.
type ServerConfig struct {
	Broker      broker.Broker
	AuthToken   string // empty disables bearer-token validation (local/dev)
}

// Server exposes the client-facing duplex socket endpoint plus health and
// metrics probes, per §6.1's `/v1/ws/audio` path.
type Server struct {
	cfg ServerConfig
	mux *http.ServeMux
}

// NewServer builds the gateway's HTTP handler.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/ws/audio", s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleWebSocket validates the bearer token, upgrades the connection, and
// runs the session actor until the socket closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" && r.URL.Query().Get("token") != s.cfg.AuthToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := NewSession(s.cfg.Broker, conn)
	session.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.cfg.Broker.Publish(ctx, "healthz_probe", nil); err != nil {
		http.Error(w, "broker unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
