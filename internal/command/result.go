package command

import (
	"errors"
	"fmt"

	"github.com/groblegark/payd/internal/breaker"
	"github.com/groblegark/payd/internal/model"
)

// Error codes carried in Result.Error.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeInvalidState = "invalid_state"
	CodeConcurrency  = "concurrency_conflict"
	CodeCircuitOpen  = "circuit_open"
	CodeTimeout      = "timeout"
	CodeRejected     = "assessment_rejected"
	CodeInternal     = "internal_error"
)

// CommandData describes the committed outcome of a successful command.
type CommandData struct {
	AggregateID string       `json:"aggregate_id"`
	EventID     string       `json:"event_id"`
	Version     int64        `json:"version"`
	Status      model.Status `json:"status"`
}

// Result is the uniform envelope every command returns. Failure results
// carry enough metadata for the caller to decide between giving up
// (validation, invalid state) and backing off to retry (concurrency
// conflict, open circuit).
type Result struct {
	Success bool         `json:"success"`
	Data    *CommandData `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`

	// CurrentVersion is set on concurrency conflicts so the caller can
	// reload before retrying.
	CurrentVersion *int64 `json:"current_version,omitempty"`
	// RetryAfterSeconds is set on circuit-open failures.
	RetryAfterSeconds *float64 `json:"retry_after_seconds,omitempty"`
}

// RejectedError is returned when a pre-commit evaluator disapproves the
// command. It is terminal, not retryable.
type RejectedError struct {
	Check   string
	Reasons []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("command rejected by %s", e.Check)
}

// resultFromError maps an error to a failure Result. Unexpected errors are
// collapsed to a generic internal failure; the caller is responsible for
// logging them with full context before the conversion.
func resultFromError(err error) Result {
	var (
		ve   *model.ValidationError
		nf   *model.NotFoundError
		is   *model.InvalidStateError
		ce   *model.ConcurrencyError
		open *breaker.CircuitOpenError
		to   *breaker.TimeoutError
		rej  *RejectedError
	)
	switch {
	case errors.As(err, &ve):
		return Result{Error: CodeValidation, Message: ve.Error()}
	case errors.As(err, &nf):
		return Result{Error: CodeNotFound, Message: nf.Error()}
	case errors.As(err, &is):
		return Result{Error: CodeInvalidState, Message: is.Error()}
	case errors.As(err, &ce):
		current := ce.CurrentVersion
		return Result{Error: CodeConcurrency, Message: ce.Error(), CurrentVersion: &current}
	case errors.As(err, &open):
		retry := open.RetryAfter.Seconds()
		return Result{Error: CodeCircuitOpen, Message: open.Error(), RetryAfterSeconds: &retry}
	case errors.As(err, &to):
		return Result{Error: CodeTimeout, Message: to.Error()}
	case errors.As(err, &rej):
		return Result{Error: CodeRejected, Message: rej.Error()}
	}
	return Result{Error: CodeInternal, Message: "internal error"}
}
