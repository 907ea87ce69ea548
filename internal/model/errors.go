package model

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors. It is
// terminal: callers must not retry without fixing the input.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// NotFoundError indicates the addressed aggregate does not exist.
type NotFoundError struct {
	AggregateID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.AggregateID)
}

// InvalidStateError indicates the requested transition is illegal from the
// aggregate's current status. It is terminal, not retryable.
type InvalidStateError struct {
	AggregateID string
	Status      Status
	Message     string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// ConcurrencyError indicates an optimistic-lock conflict: the stream's
// current version did not match the caller's expected version. It carries
// the current version so callers can reload and retry.
type ConcurrencyError struct {
	AggregateID     string
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, stream at %d",
		e.AggregateID, e.ExpectedVersion, e.CurrentVersion)
}

// PersistenceError wraps a storage-layer failure on the write path.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsDomainError reports whether err is a caller-facing domain error rather
// than an infrastructure failure. Domain errors never count toward circuit
// breaker failure thresholds: bad client input must not open a circuit that
// healthy traffic depends on.
func IsDomainError(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		is *InvalidStateError
		ce *ConcurrencyError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &is) || errors.As(err, &ce)
}
