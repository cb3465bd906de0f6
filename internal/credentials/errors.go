package credentials

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("credential not found")
	ErrAlreadyExists = errors.New("credential already exists")
	ErrInconsistent  = errors.New("credential record is inconsistent")

	// Store-level errors.
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrStoreUnavailable  = errors.New("credential store unavailable")
)
