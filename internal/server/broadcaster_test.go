package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/logging"
)

func TestBroadcaster_DeliversToEverySession(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, logging.Discard())

	conns := []*pipeConn{newPipeConn(), newPipeConn(), newPipeConn()}
	var sessions []*Session
	for i, name := range []string{"alice", "bob", "carol"} {
		s := NewSession(conns[i], 4, time.Second, logging.Discard())
		s.setUsername(name)
		r.Add(s)
		sessions = append(sessions, s)
	}

	assert.Equal(t, 3, b.Broadcast(context.Background(), "alice: hi"))
	assert.Equal(t, 3, b.BroadcastRoster(context.Background()))

	for i, s := range sessions {
		s.Close()
		assert.Equal(t, []string{"alice: hi", "USERLIST: alice bob carol"}, conns[i].Written())
	}
}

func TestBroadcaster_EmptyRegistry(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), logging.Discard())
	assert.Zero(t, b.Broadcast(context.Background(), "nobody"))
	assert.Zero(t, b.BroadcastRoster(context.Background()))
}

// TestBroadcaster_SlowConsumerIsolated checks that a client whose queue is
// full is disconnected while the rest still receive the line.
func TestBroadcaster_SlowConsumerIsolated(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, logging.Discard())

	slowConn := newPipeConn()
	slowConn.block = make(chan struct{})
	slow := NewSession(slowConn, 1, time.Second, logging.Discard())
	slow.setUsername("slow")

	fastConn := newPipeConn()
	fast := NewSession(fastConn, 16, time.Second, logging.Discard())
	fast.setUsername("fast")

	r.Add(slow)
	r.Add(fast)

	// Fill the slow queue: one line stuck in the writer, one in the channel.
	require.True(t, slow.Send("stuck"))
	require.Eventually(t, func() bool { return slow.Send("queued") }, time.Second, time.Millisecond)

	delivered := b.Broadcast(context.Background(), "fast: hello")
	assert.Equal(t, 1, delivered)
	assert.True(t, slowConn.isClosed(), "slow consumer must be disconnected")

	fast.Close()
	assert.Equal(t, []string{"fast: hello"}, fastConn.Written())

	slow.Close()
}

func TestBroadcaster_SkipsClosingSessions(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r, logging.Discard())

	conn := newPipeConn()
	s := NewSession(conn, 4, time.Second, logging.Discard())
	s.setUsername("leaving")
	r.Add(s)
	s.Close()

	assert.Zero(t, b.Broadcast(context.Background(), "late"))
	assert.Empty(t, conn.Written())
}
