package credentials

import "context"

// Repository persists credentials. Implementations must be safe for
// concurrent use.
type Repository interface {
	// Get returns ErrNotFound when login is unknown.
	Get(ctx context.Context, login string) (*Credential, error)
	Exists(ctx context.Context, login string) (bool, error)
	// Insert returns ErrAlreadyExists when login is taken.
	Insert(ctx context.Context, c *Credential) error
}
