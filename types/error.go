package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Routing and lookup error codes
const (
	ErrNotFound  ErrorCode = "NOT_FOUND"
	ErrUnhealthy ErrorCode = "UNHEALTHY"
	// ErrCircuitOpen is an UNHEALTHY variant raised by an open breaker.
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	ErrAgentBusy   ErrorCode = "AGENT_BUSY"
)

// Transport error codes
const (
	ErrTransient     ErrorCode = "TRANSIENT"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
)

// Request and workflow error codes
const (
	ErrValidation      ErrorCode = "VALIDATION"
	ErrDependencyUnmet ErrorCode = "DEPENDENCY_UNMET"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
	// ErrRateLimited is raised at the HTTP edge only.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Target     string    `json:"target,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
// Transport-class codes are retryable by default.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: defaultRetryable(code)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the retryable flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithTarget records the agent or service the error refers to.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

func defaultRetryable(code ErrorCode) bool {
	switch code {
	case ErrTransient, ErrTimeout, ErrUpstreamError:
		return true
	default:
		return false
	}
}

// =============================================================================
// Constructors
// =============================================================================

// NewNotFoundError reports an unknown agent, service or task type.
func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message)
}

// NewUnhealthyError reports a known-bad target.
func NewUnhealthyError(target, message string) *Error {
	return NewError(ErrUnhealthy, message).WithTarget(target)
}

// NewCircuitOpenError reports a target whose breaker is open.
func NewCircuitOpenError(target string) *Error {
	return NewError(ErrCircuitOpen, fmt.Sprintf("circuit open for %s", target)).WithTarget(target)
}

// NewTransientError reports a connection failure or 5xx-class response.
func NewTransientError(message string, cause error) *Error {
	return NewError(ErrTransient, message).WithCause(cause)
}

// NewTimeoutError reports an external call that ran out of time.
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message).WithCause(cause)
}

// NewValidationError reports a malformed request or payload.
func NewValidationError(message string) *Error {
	return NewError(ErrValidation, message)
}

// NewDependencyUnmetError reports a workflow step whose prerequisite did not succeed.
func NewDependencyUnmetError(stepID, dependency string) *Error {
	return NewError(ErrDependencyUnmet,
		fmt.Sprintf("step %s skipped: dependency %s did not succeed", stepID, dependency)).WithTarget(stepID)
}

// =============================================================================
// Helpers
// =============================================================================

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error should be retried.
// Typed errors decide through their Retryable flag. Caller cancellation is
// never retried; any other untyped error (deadline, net.Error, io failures)
// is treated as transport-class.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// GetErrorCode extracts the error code from an error.
// Untyped errors map to TIMEOUT for deadlines and TRANSIENT otherwise.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrInternalError
	}
	return ErrTransient
}
