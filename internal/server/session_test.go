package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/logging"
)

func TestSession_DeliversInOrder(t *testing.T) {
	conn := newPipeConn()
	s := NewSession(conn, 8, time.Second, logging.Discard())

	for _, line := range []string{"one", "two", "three"} {
		require.True(t, s.Send(line))
	}
	s.Close()

	assert.Equal(t, []string{"one", "two", "three"}, conn.Written())
	assert.True(t, conn.isClosed(), "close releases the connection")
}

func TestSession_SendAfterClose(t *testing.T) {
	s := NewSession(newPipeConn(), 1, time.Second, logging.Discard())
	s.Close()

	assert.False(t, s.Send("late"))
	assert.True(t, s.isClosed())
	assert.NotPanics(t, s.Close, "close is idempotent")
}

func TestSession_FullQueueRejects(t *testing.T) {
	conn := newPipeConn()
	conn.block = make(chan struct{})
	s := NewSession(conn, 1, time.Second, logging.Discard())

	// The writer takes the first line and blocks on it; the second fills the queue.
	require.True(t, s.Send("a"))
	require.Eventually(t, func() bool { return s.Send("b") }, time.Second, time.Millisecond)
	assert.False(t, s.Send("c"))

	close(conn.block)
	s.Close()
	assert.Equal(t, []string{"a", "b"}, conn.Written())
}

func TestSession_IDsAreUnique(t *testing.T) {
	a := newTestSession(t, "a", newPipeConn(), 1)
	b := newTestSession(t, "b", newPipeConn(), 1)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "pipe", a.RemoteAddr())
}

func TestSession_WriteFailureReleasesConn(t *testing.T) {
	conn := newPipeConn()
	s := NewSession(conn, 4, time.Second, logging.Discard())

	require.NoError(t, conn.Close())
	s.Send("dropped")
	s.Close()

	assert.Empty(t, conn.Written())
}
