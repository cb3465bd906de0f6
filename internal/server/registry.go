package server

import "sync"

// Registry is the ordered set of logged-in sessions, in login order.
//
// A single mutex guards every read and write; it is never held across I/O.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends s. It returns false and changes nothing if s is already present.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(s) >= 0 {
		return false
	}
	r.sessions = append(r.sessions, s)
	return true
}

// Remove deletes s, preserving the order of the rest. Removing an absent
// session is a no-op that returns false.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(s)
	if i < 0 {
		return false
	}
	copy(r.sessions[i:], r.sessions[i+1:])
	r.sessions[len(r.sessions)-1] = nil
	r.sessions = r.sessions[:len(r.sessions)-1]
	return true
}

// Snapshot returns a copy of the current sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Usernames returns the usernames of a snapshot, in login order.
func (r *Registry) Usernames() []string {
	return usernames(r.Snapshot())
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) indexOf(s *Session) int {
	for i, existing := range r.sessions {
		if existing == s {
			return i
		}
	}
	return -1
}

func usernames(sessions []*Session) []string {
	names := make([]string, len(sessions))
	for i, s := range sessions {
		names[i] = s.Username()
	}
	return names
}
