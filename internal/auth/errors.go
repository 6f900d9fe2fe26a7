package auth

import (
	"errors"
	"fmt"
)

// sentinel errors for common failure modes
var (
	ErrCredentialProcessing = errors.New("credential processing failed")
	ErrTokenIssuance        = errors.New("token issuance failed")
	// ErrAuthentication is deliberately generic so callers cannot tell an
	// unknown email from a wrong secret.
	ErrAuthentication    = errors.New("invalid credentials")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidConfig     = errors.New("invalid auth config")
	ErrMissingSigningKey = errors.New("signing key not configured")
)

// CredentialProcessingError reports that the secret could not be hashed.
// The write that triggered it must not be committed.
type CredentialProcessingError struct {
	Err error
}

func (e *CredentialProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCredentialProcessing, e.Err)
}

func (e *CredentialProcessingError) Unwrap() error { return e.Err }

func (e *CredentialProcessingError) Is(target error) bool { return target == ErrCredentialProcessing }

// TokenIssuanceError reports a signing failure. No token is returned with it.
type TokenIssuanceError struct {
	Kind TokenKind
	Err  error
}

func (e *TokenIssuanceError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrTokenIssuance, e.Kind, e.Err)
}

func (e *TokenIssuanceError) Unwrap() error { return e.Err }

func (e *TokenIssuanceError) Is(target error) bool { return target == ErrTokenIssuance }
