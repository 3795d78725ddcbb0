package jwks

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed is returned when the JWKS endpoint cannot be reached or answers with an error
	ErrFetchFailed = errors.New("jwks: fetch failed")

	// ErrMalformedKeySet is returned when the JWKS document cannot be turned into public keys
	ErrMalformedKeySet = errors.New("jwks: malformed key set")

	// ErrKeyNotFound is returned when no key matches the requested key id
	ErrKeyNotFound = errors.New("jwks: key not found")
)

// ResolutionError is returned by Resolve for every failure.
type ResolutionError struct {
	KeyID string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving key %q: %v", e.KeyID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
