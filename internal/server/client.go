// ABOUTME: Per-connection client with a buffered writer goroutine
// ABOUTME: Implements the hub Outbox; delivery to a gone connection drops silently

package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jotlab/jotbot/internal/history"
)

const (
	// outboundBufferSize is the per-connection frame buffer.
	outboundBufferSize = 64

	writeWait = 10 * time.Second
)

// Outbound frame kinds.
const (
	kindSystem   = "system"
	kindResponse = "response"
	kindHistory  = "history"
)

// outboundFrame is one message written to the caller's socket.
type outboundFrame struct {
	Kind     string            `json:"kind"`
	Text     string            `json:"text,omitempty"`
	Messages []history.Message `json:"messages,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// client wraps one WebSocket connection. Frames go through a buffered
// channel drained by a single writer goroutine, so concurrent pipelines
// never interleave writes on the wire.
type client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	out    chan outboundFrame
	closed bool
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		conn:   conn,
		out:    make(chan outboundFrame, outboundBufferSize),
		logger: logger,
	}
}

// send enqueues a frame for the writer goroutine. Frames for closed or
// saturated connections are dropped: response delivery is best-effort
// and must never block a pipeline.
func (c *client) send(frame outboundFrame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.out <- frame:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.logger.Debug("dropped frame for slow connection", "kind", frame.Kind)
	}
}

// System implements hub.Outbox.
func (c *client) System(text string) {
	c.send(outboundFrame{Kind: kindSystem, Text: text, SentAt: time.Now()})
}

// Respond implements hub.Outbox.
func (c *client) Respond(text string) {
	c.send(outboundFrame{Kind: kindResponse, Text: text, SentAt: time.Now()})
}

// history delivers a history snapshot.
func (c *client) history(messages []history.Message) {
	c.send(outboundFrame{Kind: kindHistory, Messages: messages, SentAt: time.Now()})
}

// close marks the client closed and stops the writer goroutine.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// writePump drains the outbound channel onto the socket. Runs until the
// channel closes or a write fails (the peer is gone).
func (c *client) writePump() {
	for frame := range c.out {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(frame); err != nil {
			c.logger.Debug("write failed, connection gone", "error", err)
			// Keep draining so pipeline sends never block.
			for range c.out {
			}
			return
		}
	}
}
