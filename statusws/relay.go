// Package statusws relays live tool status events to WebSocket clients.
//
// Each connected client gets its own subscription on the agent's Broadcaster,
// so a slow consumer only drops its own events and never slows tool execution.
package statusws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley"
)

const (
	defaultBuffer       = 64
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Relay is an http.Handler that upgrades requests to WebSocket connections and
// streams status events to them as JSON.
type Relay struct {
	broadcaster  *parley.Broadcaster
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	buffer       int
	writeTimeout time.Duration
	pingInterval time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithBuffer sets the per-client event buffer.
func WithBuffer(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithLogger sets a structured logger for connection lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCheckOrigin overrides the origin check used during the upgrade
// handshake (the default accepts same-origin requests only).
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(r *Relay) { r.upgrader.CheckOrigin = fn }
}

// NewRelay creates a Relay over the given broadcaster.
func NewRelay(b *parley.Broadcaster, opts ...Option) *Relay {
	r := &Relay{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:       slog.New(slog.DiscardHandler),
		buffer:       defaultBuffer,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		r.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub := r.broadcaster.Subscribe(r.buffer)
	defer sub.Cancel()

	r.logger.Info("status client connected", "remote", req.RemoteAddr)

	// Reads only detect the client going away; inbound payloads are ignored.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				r.writeClose(conn, websocket.CloseGoingAway, "broadcaster closed")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				r.logger.Info("status client dropped", "remote", req.RemoteAddr, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			r.logger.Info("status client disconnected", "remote", req.RemoteAddr)
			return
		case <-req.Context().Done():
			r.writeClose(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (r *Relay) writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}
