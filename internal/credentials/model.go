package credentials

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxUsernameLength is the longest login accepted, in bytes.
const MaxUsernameLength = 100

// Credential is one row of the credential table.
type Credential struct {
	Login  string
	Digest []byte
	Salt   []byte
}

// ValidateUsername reports whether name can be used as a login. Names are
// broadcast in a space-separated roster, so whitespace and commas are refused.
func ValidateUsername(name string) error {
	if name == "" || len(name) > MaxUsernameLength {
		return fmt.Errorf("%w: username must be 1..%d bytes", ErrInvalidCredential, MaxUsernameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: username is not valid UTF-8", ErrInvalidCredential)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || r == ',' || unicode.IsControl(r) {
			return fmt.Errorf("%w: username contains %q", ErrInvalidCredential, r)
		}
	}
	return nil
}
