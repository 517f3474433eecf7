package conveyor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("conveyor: no store configured")
	ErrNoQueue     = errors.New("conveyor: no queue configured")
	ErrStoreClosed = errors.New("conveyor: store closed")

	// Not found errors.
	ErrTaskNotFound       = errors.New("conveyor: task not found")
	ErrWorkflowNotFound   = errors.New("conveyor: workflow not found")
	ErrCheckpointNotFound = errors.New("conveyor: checkpoint not found")
	ErrApprovalNotFound   = errors.New("conveyor: approval request not found")
	ErrEventNotFound      = errors.New("conveyor: event not found")
	ErrStageNotFound      = errors.New("conveyor: stage not found")
	ErrHandlerNotFound    = errors.New("conveyor: no handler registered")

	// Subscription errors.
	ErrAlreadySubscribed = errors.New("conveyor: already subscribed")
	ErrNotSubscribed     = errors.New("conveyor: not subscribed")

	// State errors.
	ErrApprovalPending    = errors.New("conveyor: approval request already pending")
	ErrApprovalRejected   = errors.New("conveyor: approval rejected")
	ErrNotAwaitingApproval = errors.New("conveyor: workflow is not awaiting approval")
	ErrMaxAttemptsExceeded = errors.New("conveyor: max retry attempts exceeded")
)

// ErrorClass categorizes a failure for the retry classifier (see the retry
// package). Transient failures may be retried; permanent failures abort
// immediately.
type ErrorClass string

const (
	// ClassTransient marks rate-limit, timeout, network-reset, and 5xx
	// failures. Safe to retry.
	ClassTransient ErrorClass = "transient"
	// ClassPermanent marks auth, validation, and other 4xx failures.
	// Never retried.
	ClassPermanent ErrorClass = "permanent"
)

// TransientError is a retryable failure from a stage handler or one of its
// downstream dependencies.
type TransientError struct {
	Code string // machine-readable code, e.g. "rate_limit", "timeout"
	Err  error
}

// NewTransientError wraps err as a retryable failure.
func NewTransientError(code string, err error) *TransientError {
	return &TransientError{Code: code, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("conveyor: transient (%s): %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that will not succeed on retry (auth,
// validation). The retry executor aborts immediately on it.
type PermanentError struct {
	Code string
	Err  error
}

// NewPermanentError wraps err as a non-retryable failure.
func NewPermanentError(code string, err error) *PermanentError {
	return &PermanentError{Code: code, Err: err}
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("conveyor: permanent (%s): %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PermanentError) Unwrap() error { return e.Err }

// CircuitOpenError is the fast-fail returned when a handler's circuit
// breaker is open. It carries the time at which the breaker will next
// allow a trial call.
type CircuitOpenError struct {
	HandlerID     string
	NextAttemptAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("conveyor: circuit open for handler %q, next attempt at %s",
		e.HandlerID, e.NextAttemptAt.Format(time.RFC3339))
}

// TerminatedError records a routing decision to stop a workflow. It is a
// control-flow signal, not a failure: the engine converts it into a
// terminated run rather than a failed one.
type TerminatedError struct {
	Stage  string
	Reason string
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("conveyor: workflow terminated at stage %q: %s", e.Stage, e.Reason)
}
