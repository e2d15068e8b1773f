// ABOUTME: WebSocket transport for the jotbot hub
// ABOUTME: One connection per caller; each note runs its pipeline in its own goroutine

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jotlab/jotbot/internal/hub"
)

// Inbound frame types.
const (
	typeSend         = "send"
	typeLoadHistory  = "load_history"
	typeCleanHistory = "clean_history"
)

// inboundFrame is one message read from a caller's socket.
type inboundFrame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Text   string `json:"text,omitempty"`
}

// Server exposes the hub over a WebSocket endpoint plus a health check.
type Server struct {
	addr     string
	hub      *hub.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a server listening on addr. Pass nil logger for default.
func New(addr string, svc *hub.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		hub:    svc,
		logger: logger.With("component", "server"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Callers are CLI/SDK clients, not browsers.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// Mux builds the HTTP mux with all routes registered.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Mux(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleWebSocket owns one connection for its lifetime. Reads happen on
// this goroutine; writes go through the client's writer goroutine; each
// accepted note runs its pipeline concurrently so a slow integration
// call never stalls the read loop or other callers.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s.logger)
	go c.writePump()
	defer func() {
		c.close()
		_ = conn.Close()
	}()

	c.System(hub.MsgConnected)
	s.logger.Debug("connection established", "remote", conn.RemoteAddr().String())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Normal close or peer gone; nothing hub-specific to do.
			s.logger.Debug("connection closed", "error", err)
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.System("malformed frame: " + err.Error())
			continue
		}

		switch frame.Type {
		case typeSend:
			// Detached context: accounting work finishes even if the
			// connection drops mid-pipeline; delivery then just drops.
			go s.hub.Send(context.Background(), frame.UserID, frame.Text, c)
		case typeLoadHistory:
			c.history(s.hub.History(frame.UserID))
		case typeCleanHistory:
			s.hub.Clean(frame.UserID)
			c.System("history cleared")
		default:
			c.System(fmt.Sprintf("unknown frame type %q", frame.Type))
		}
	}
}
