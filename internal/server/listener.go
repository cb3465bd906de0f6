package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/logging"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// Server accepts client connections and runs each on its own goroutine.
type Server struct {
	cfg     *config.Config
	handler *Handler
	log     logging.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[Conn]struct{}
	wg        sync.WaitGroup

	shuttingDown atomic.Bool
}

func NewServer(cfg *config.Config, handler *Handler, log logging.Logger) *Server {
	return &Server{
		cfg:       cfg,
		handler:   handler,
		log:       log,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[Conn]struct{}),
	}
}

// ListenAndServe binds cfg.Addr and serves it until ctx is cancelled or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	s.log.Info(ctx, "chat server listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shuttingDown.Load() || ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn(ctx, "accept error; retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		go s.ServeConn(ctx, NewTCPConn(nc, s.cfg.MaxLineLength))
	}
}

// ServeConn runs the handler on conn and blocks until it is done. It is used
// by the TCP accept loop and by the WebSocket endpoint.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	if !s.trackConn(ctx, conn) {
		_ = conn.Close()
		return
	}
	defer s.wg.Done()
	defer s.untrackConn(conn)

	s.handler.Handle(ctx, conn)
}

// Shutdown stops accepting, closes every open connection and waits for their
// handlers to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	for ln := range s.listeners {
		_ = ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info(ctx, "chat server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) trackConn(ctx context.Context, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown.Load() {
		return false
	}
	if limit := s.cfg.MaxConnections; limit > 0 && len(s.conns) >= limit {
		s.log.Warn(ctx, "connection limit reached; rejecting client",
			"remote", conn.RemoteAddr(), "max", limit)
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
