package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/credentials"
	"github.com/Tyrowin/linechat/internal/logging"
)

const readTimeout = 2 * time.Second

type testEnv struct {
	cfg      *config.Config
	registry *Registry
	store    *credentials.Store
	server   *Server
	addr     string
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.WebSocketAddr = ""
	cfg.Hash.Iterations = 1
	cfg.RateLimit.Burst = 0
	cfg.WriteTimeout = time.Second
	return cfg
}

func newTestStore(t *testing.T) *credentials.Store {
	t.Helper()
	hasher, err := credentials.NewIteratedHasher(credentials.AlgorithmSHA1, 1)
	require.NoError(t, err)
	return credentials.NewStore(credentials.NewMemoryRepository(), hasher)
}

// startServer runs a chat server on a loopback port and stops it when the
// test ends.
func startServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	log := logging.Discard()
	registry := NewRegistry()
	store := newTestStore(t)
	handler := NewHandler(cfg, registry, NewBroadcaster(registry, log), store, log)
	srv := NewServer(cfg, handler, log)

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		require.NoError(t, srv.Shutdown(shutdownCtx))
		require.ErrorIs(t, <-served, ErrServerClosed)
	})

	return &testEnv{cfg: cfg, registry: registry, store: store, server: srv, addr: ln.Addr().String()}
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, readTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) readLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	got, err := c.readLine()
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, got)
}

// expectClosed asserts the server closed the connection without sending
// anything further.
func (c *testClient) expectClosed() {
	c.t.Helper()
	line, err := c.readLine()
	require.Error(c.t, err, "unexpected line %q", line)
	var ne net.Error
	require.False(c.t, errors.As(err, &ne) && ne.Timeout(), "connection still open")
}

// expectSilence asserts nothing arrives for a short while.
func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := c.reader.ReadString('\n')
	var ne net.Error
	require.True(c.t, errors.As(err, &ne) && ne.Timeout(), "unexpected line %q (err %v)", line, err)
}

// login registers and signs in a user, consuming ACCEPTED, its own join
// notice and the roster that follows.
func (c *testClient) login(user, pass string) {
	c.t.Helper()
	c.send("NEWUSER: " + user + "," + pass)
	c.expect(ReplyUserCreated)
	c.send("LOGIN: " + user + "," + pass)
	c.expect(ReplyAccepted)
	c.expect(JoinNotice(user))
	line, err := c.readLine()
	require.NoError(c.t, err)
	require.True(c.t, strings.HasPrefix(line, rosterPrefix), "expected roster, got %q", line)
}

// pipeConn is an in-memory Conn for tests that do not need a socket.
type pipeConn struct {
	mu      sync.Mutex
	lines   chan string
	written []string
	closed  chan struct{}
	once    sync.Once
	block   chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		lines:  make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) ReadLine() (string, error) {
	select {
	case line := <-p.lines:
		return line, nil
	case <-p.closed:
		return "", net.ErrClosed
	}
}

func (p *pipeConn) WriteLine(line string, _ time.Time) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-p.closed:
			return net.ErrClosed
		}
	}
	select {
	case <-p.closed:
		return net.ErrClosed
	default:
	}
	p.mu.Lock()
	p.written = append(p.written, line)
	p.mu.Unlock()
	return nil
}

func (p *pipeConn) SetReadDeadline(time.Time) error { return nil }

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) RemoteAddr() string { return "pipe" }

func (p *pipeConn) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *pipeConn) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func newTestSession(t *testing.T, name string, conn Conn, queue int) *Session {
	t.Helper()
	s := NewSession(conn, queue, time.Second, logging.Discard())
	s.setUsername(name)
	t.Cleanup(s.Close)
	return s
}
