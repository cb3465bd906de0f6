package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemoveOrder(t *testing.T) {
	r := NewRegistry()
	a := newTestSession(t, "alice", newPipeConn(), 4)
	b := newTestSession(t, "bob", newPipeConn(), 4)
	c := newTestSession(t, "carol", newPipeConn(), 4)

	require.True(t, r.Add(a))
	require.True(t, r.Add(b))
	require.True(t, r.Add(c))
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Usernames())

	require.True(t, r.Remove(b))
	assert.Equal(t, []string{"alice", "carol"}, r.Usernames())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Idempotent(t *testing.T) {
	r := NewRegistry()
	a := newTestSession(t, "alice", newPipeConn(), 4)

	require.True(t, r.Add(a))
	assert.False(t, r.Add(a), "second add is a no-op")
	assert.Equal(t, 1, r.Len())

	require.True(t, r.Remove(a))
	assert.False(t, r.Remove(a), "second remove is a no-op")
	assert.NotPanics(t, func() { r.Remove(a) })
	assert.Empty(t, r.Usernames())
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	a := newTestSession(t, "alice", newPipeConn(), 4)
	r.Add(a)

	snap := r.Snapshot()
	r.Remove(a)

	require.Len(t, snap, 1)
	assert.Same(t, a, snap[0])
	assert.Zero(t, r.Len())
}

// TestRegistry_Concurrent checks that concurrent adds and removes never lose
// or duplicate a session.
func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	const n = 64

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = newTestSession(t, fmt.Sprintf("user%d", i), newPipeConn(), 1)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			r.Add(s)
			_ = r.Snapshot()
		}(s)
	}
	wg.Wait()
	require.Equal(t, n, r.Len())

	seen := make(map[string]bool, n)
	for _, name := range r.Usernames() {
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
	}

	for _, s := range sessions[:n/2] {
		wg.Add(2)
		go func(s *Session) {
			defer wg.Done()
			r.Remove(s)
		}(s)
		go func(s *Session) {
			defer wg.Done()
			r.Remove(s)
		}(s)
	}
	wg.Wait()
	assert.Equal(t, n/2, r.Len())
}
