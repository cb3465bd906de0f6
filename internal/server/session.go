package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/linechat/internal/logging"
)

// Session is one client connection: its endpoint, its identity once logged
// in, and a bounded outbound queue drained by a single writer goroutine so
// lines written to the same client never interleave.
type Session struct {
	id           string
	conn         Conn
	log          logging.Logger
	writeTimeout time.Duration

	// username is written once by the owning handler before the session is
	// added to the registry and is read-only afterwards.
	username string

	mu     sync.Mutex
	send   chan string
	closed bool
	done   chan struct{}
}

// NewSession creates a session for conn and starts its writer. The session
// owns conn from now on; release it with Close.
func NewSession(conn Conn, queueSize int, writeTimeout time.Duration, log logging.Logger) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		log:          log,
		writeTimeout: writeTimeout,
		send:         make(chan string, queueSize),
		done:         make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *Session) ID() string { return s.id }

// Username is empty until the session has logged in.
func (s *Session) Username() string { return s.username }

func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

func (s *Session) setUsername(name string) { s.username = name }

// Send queues line for delivery without blocking. It returns false when the
// session is closed or its queue is full.
func (s *Session) Send(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- line:
		return true
	default:
		return false
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting new lines, lets the writer flush what is queued and
// waits for it to release the connection. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()

	<-s.done
}

// abort drops the connection immediately. The owning handler sees a read
// error and runs its normal exit path.
func (s *Session) abort() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn(context.Background(), "error closing connection", "session", s.id, "error", err)
	}
}

func (s *Session) deadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}

func (s *Session) writePump() {
	defer func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn(context.Background(), "error closing connection in writePump", "session", s.id, "error", err)
		}
		close(s.done)
	}()

	for line := range s.send {
		if err := s.conn.WriteLine(line, s.deadline()); err != nil {
			if !isExpectedCloseError(err) {
				s.log.Warn(context.Background(), "write failed", "session", s.id, "remote", s.conn.RemoteAddr(), "error", err)
			}
			return
		}
	}
}
