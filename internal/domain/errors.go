package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage and state-machine boundaries. Callers test
// them with errors.Is.
var (
	// ErrNotFound is returned when a car, ticket, or user lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint (VIN, plate) is hit.
	ErrDuplicate = errors.New("duplicate value")
	// ErrInvalidTransition is returned when a ticket action is attempted from
	// a status it is not valid in, or by the wrong actor.
	ErrInvalidTransition = errors.New("invalid ticket transition")
)

// ValidationError describes malformed user input. Conversation flows catch it
// and re-prompt instead of aborting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
