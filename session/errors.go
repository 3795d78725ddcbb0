package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable tag of a rejection.
type ErrorKind string

const (
	KindEmptyToken           ErrorKind = "empty_token"
	KindMalformedToken       ErrorKind = "malformed_token"
	KindUnsupportedAlgorithm ErrorKind = "unsupported_algorithm"
	KindSignatureInvalid     ErrorKind = "signature_invalid"
	KindTokenNotYetValid     ErrorKind = "token_not_yet_valid"
	KindTokenExpired         ErrorKind = "token_expired"
	KindKeyResolution        ErrorKind = "key_resolution"
	KindEmptyIssuer          ErrorKind = "empty_issuer"
	KindIssuerMismatch       ErrorKind = "issuer_mismatch"
	KindUnexpected           ErrorKind = "unexpected"
)

// String returns the tag
func (k ErrorKind) String() string {
	return string(k)
}

// ValidationError describes why a token was rejected.
type ValidationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches any *ValidationError of the same kind, so errors.Is(err, ErrTokenExpired) works
// regardless of message or cause.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

func newValidationError(kind ErrorKind, message string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Message: message, Err: err}
}

var (
	ErrEmptyToken           = newValidationError(KindEmptyToken, "session token is empty", nil)
	ErrMalformedToken       = newValidationError(KindMalformedToken, "session token is malformed", nil)
	ErrUnsupportedAlgorithm = newValidationError(KindUnsupportedAlgorithm, "signing algorithm is not supported", nil)
	ErrSignatureInvalid     = newValidationError(KindSignatureInvalid, "token signature is invalid", nil)
	ErrTokenNotYetValid     = newValidationError(KindTokenNotYetValid, "token is not valid yet", nil)
	ErrTokenExpired         = newValidationError(KindTokenExpired, "token has expired", nil)
	ErrKeyResolution        = newValidationError(KindKeyResolution, "verification key could not be resolved", nil)
	ErrEmptyIssuer          = newValidationError(KindEmptyIssuer, "token issuer is empty", nil)
	ErrIssuerMismatch       = newValidationError(KindIssuerMismatch, "token issuer is not trusted", nil)
	ErrUnexpected           = newValidationError(KindUnexpected, "unexpected validation failure", nil)
)

// ConfigError is returned by NewValidator for unusable configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid session validator configuration: " + strings.Join(e.Problems, "; ")
}

// IsConfigError reports whether err is a construction-time configuration error.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}
