package employee

import (
	"errors"
	"fmt"
)

// sentinel errors for common failure modes
var (
	ErrValidation = errors.New("validation failed")
	ErrUniqueness = errors.New("uniqueness violation")
	ErrNotFound   = errors.New("employee not found")
	ErrConflict   = errors.New("employee was modified concurrently")
)

// ValidationError reports a missing or malformed field. Callers may correct and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func required(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

func malformed(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UniquenessError reports that a unique field already belongs to another record.
type UniquenessError struct {
	Field string
	Value string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%s: %s already exists", ErrUniqueness, e.Field)
}

func (e *UniquenessError) Is(target error) bool { return target == ErrUniqueness }
