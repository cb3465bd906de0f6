package credentials

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
)

// Store answers the handshake's credential queries on top of a Repository.
// It is safe for concurrent use if the Repository is.
type Store struct {
	repo   Repository
	hasher Hasher
	rand   io.Reader
}

func NewStore(repo Repository, hasher Hasher) *Store {
	return &Store{repo: repo, hasher: hasher, rand: rand.Reader}
}

// Exists reports whether login is registered.
func (s *Store) Exists(ctx context.Context, login string) (bool, error) {
	ok, err := s.repo.Exists(ctx, login)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Authenticate checks password against the stored digest for login.
//
// Unknown logins and empty inputs are hashed against a fixed dummy salt and
// digest so the work done matches that of a real user with a wrong password.
func (s *Store) Authenticate(ctx context.Context, login, password string) (bool, error) {
	known := true
	if login == "" || password == "" {
		known = false
	}

	salt := make([]byte, s.hasher.SaltSize())
	digest := make([]byte, s.hasher.DigestSize())

	cred, err := s.repo.Get(ctx, login)
	switch {
	case errors.Is(err, ErrNotFound):
		known = false
	case err != nil:
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	case len(cred.Salt) == 0 || len(cred.Digest) == 0:
		return false, fmt.Errorf("%w: %w: login %q", ErrStoreUnavailable, ErrInconsistent, login)
	default:
		salt, digest = cred.Salt, cred.Digest
	}

	proposed := s.hasher.Digest(password, salt)
	match := subtle.ConstantTimeCompare(proposed, digest) == 1

	return match && known, nil
}

// Create registers login with a fresh random salt. It returns false with a
// nil error when login is already taken.
func (s *Store) Create(ctx context.Context, login, password string) (bool, error) {
	if err := ValidateUsername(login); err != nil {
		return false, err
	}
	if password == "" {
		return false, fmt.Errorf("%w: empty password", ErrInvalidCredential)
	}

	salt := make([]byte, s.hasher.SaltSize())
	if _, err := io.ReadFull(s.rand, salt); err != nil {
		return false, fmt.Errorf("generate salt: %w", err)
	}

	err := s.repo.Insert(ctx, &Credential{
		Login:  login,
		Digest: s.hasher.Digest(password, salt),
		Salt:   salt,
	})
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return true, nil
}
