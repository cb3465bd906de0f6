package credentials

import (
	"context"
	"sync"
)

// MemoryRepository keeps credentials in process memory. Used for tests and
// the "memory" DSN.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]Credential)}
}

func (r *MemoryRepository) Get(_ context.Context, login string) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.creds[login]
	if !ok {
		return nil, ErrNotFound
	}
	return &Credential{
		Login:  c.Login,
		Digest: append([]byte(nil), c.Digest...),
		Salt:   append([]byte(nil), c.Salt...),
	}, nil
}

func (r *MemoryRepository) Exists(_ context.Context, login string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.creds[login]
	return ok, nil
}

func (r *MemoryRepository) Insert(_ context.Context, c *Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[c.Login]; ok {
		return ErrAlreadyExists
	}
	r.creds[c.Login] = Credential{
		Login:  c.Login,
		Digest: append([]byte(nil), c.Digest...),
		Salt:   append([]byte(nil), c.Salt...),
	}
	return nil
}
