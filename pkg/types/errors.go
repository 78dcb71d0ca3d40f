package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for terminal, user-visible failures. Callers are expected
// to match with errors.Is and must not retry any of them.
var (
	// ErrMarketClosed is returned when a stake arrives after the deadline.
	ErrMarketClosed = errors.New("market closed")

	// ErrConflict signals an optimistic-concurrency loss: the record's
	// observed state changed between read and write (e.g. a prediction was
	// claimed by a racing matchmaking attempt).
	ErrConflict = errors.New("state conflict")

	// ErrNotParticipant is returned when a user acts on a battle they are
	// not a side of.
	ErrNotParticipant = errors.New("user is not a battle participant")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable wraps transient collaborator failures (store, bus).
	// Callers may retry with backoff.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// ValidationError reports malformed or missing input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
