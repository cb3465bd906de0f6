// Package testhelpers provides common utilities for end-to-end tests of the
// chat server.
//
// It starts a fully wired application on loopback ports and offers small
// line-protocol clients for TCP and WebSocket so tests read like a
// transcript of a chat session.
package testhelpers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/app"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
)

// TestOrigin is the browser origin allowed by StartApp.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every read made by the helper clients.
const ReadTimeout = 3 * time.Second

// Running is a started application.
type Running struct {
	App *app.App

	cancel  context.CancelFunc
	done    <-chan error
	once    sync.Once
	stopErr error
}

// ChatAddr returns the TCP address of the chat listener.
func (r *Running) ChatAddr() string { return r.App.Addr().String() }

// WebSocketURL returns the ws:// URL of the WebSocket endpoint.
func (r *Running) WebSocketURL() string { return "ws://" + r.App.HTTPAddr().String() + "/ws" }

// HTTPURL returns the base http:// URL.
func (r *Running) HTTPURL() string { return "http://" + r.App.HTTPAddr().String() }

// Stop cancels the application and waits for Run to return. Later calls
// return the same result.
func (r *Running) Stop() error {
	r.once.Do(func() {
		r.cancel()
		select {
		case r.stopErr = <-r.done:
		case <-time.After(10 * time.Second):
			r.stopErr = errors.New("application did not stop")
		}
	})
	return r.stopErr
}

// TestConfig returns a configuration bound to loopback ephemeral ports with
// a cheap hash and an in-memory store.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.WebSocketAddr = "127.0.0.1:0"
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.DatabaseDSN = "memory"
	cfg.Hash.Iterations = 1
	cfg.RateLimit.Burst = 0
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

// StartApp runs the application built from cfg (TestConfig when nil) and
// stops it when the test ends.
func StartApp(t *testing.T, cfg *config.Config) *Running {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}

	a, err := app.New(context.Background(), cfg, app.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("App exited during startup: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("App did not start in time")
	}

	r := &Running{App: a, cancel: cancel, done: done}
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

// LineClient is a TCP client speaking the line protocol.
type LineClient struct {
	t      *testing.T
	Conn   net.Conn
	reader *bufio.Reader
}

// DialTCP connects to addr; the connection is closed when the test ends.
func DialTCP(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, ReadTimeout)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{t: t, Conn: conn, reader: bufio.NewReader(conn)}
}

// ConnectTCP dials addr without tying the connection to a test.
func ConnectTCP(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, ReadTimeout)
}

// Send writes line followed by a newline.
func (c *LineClient) Send(line string) {
	c.t.Helper()
	if _, err := io.WriteString(c.Conn, line+"\n"); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// ReadLine returns the next line without its terminator.
func (c *LineClient) ReadLine() (string, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Expect reads one line and fails the test unless it equals want.
func (c *LineClient) Expect(want string) {
	c.t.Helper()
	got, err := c.ReadLine()
	if err != nil {
		c.t.Fatalf("Waiting for %q: %v", want, err)
	}
	if got != want {
		c.t.Fatalf("Expected %q, got %q", want, got)
	}
}

// ExpectClosed fails the test unless the server closes the connection.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()
	line, err := c.ReadLine()
	if err == nil {
		c.t.Fatalf("Expected connection to close, got %q", line)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.t.Fatal("Connection is still open")
	}
}

// WSClient is a WebSocket client speaking the line protocol, one line per
// text frame.
type WSClient struct {
	t    *testing.T
	Conn *websocket.Conn
}

// DialWebSocket connects with the allowed test origin.
func DialWebSocket(t *testing.T, url string) *WSClient {
	t.Helper()
	conn, err := ConnectWebSocket(url, TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &WSClient{t: t, Conn: conn}
}

// ConnectWebSocket dials url sending origin as the Origin header when it is
// not empty.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *WSClient) Send(line string) {
	c.t.Helper()
	if err := c.Conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
}

func (c *WSClient) Expect(want string) {
	c.t.Helper()
	if err := c.Conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		c.t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := c.Conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("Waiting for %q: %v", want, err)
	}
	if string(data) != want {
		c.t.Fatalf("Expected %q, got %q", want, string(data))
	}
}

// Close sends a normal close frame and closes the connection.
func (c *WSClient) Close() error {
	err := c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.Conn.Close()
}
