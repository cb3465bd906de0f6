package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
)

// wsConn carries the line protocol over WebSocket text frames, one line per
// frame.
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, maxLineLength int) *wsConn {
	if maxLineLength > 0 {
		// Allow for a trailing CRLF that ReadLine strips.
		conn.SetReadLimit(int64(maxLineLength) + 2)
	}
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return textLine(bytes.TrimRight(data, "\r\n")), nil
	}
}

func (c *wsConn) WriteLine(line string, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WebSocketHandler upgrades requests and hands each connection to the chat
// server, so browser clients share the registry with TCP clients.
type WebSocketHandler struct {
	server   *Server
	upgrader websocket.Upgrader
	maxLine  int
	log      logging.Logger
}

func NewWebSocketHandler(srv *Server, cfg *config.Config, log logging.Logger) *WebSocketHandler {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	return &WebSocketHandler{
		server: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		maxLine: cfg.MaxLineLength,
		log:     log,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// The request context ends when ServeHTTP returns; the session must not.
	h.server.ServeConn(context.WithoutCancel(r.Context()), newWSConn(conn, h.maxLine))
}

// HealthHandler reports liveness and the number of logged-in users.
func HealthHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "Chat server is running! %d user(s) online.", registry.Len())
	}
}

// SetupRoutes configures the HTTP routes served next to the TCP listener.
func SetupRoutes(ws http.Handler, registry *Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(registry))
	mux.Handle("/ws", ws)
	return mux
}
