package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of failure shared by the planner, the phase
// registry and the orchestrator.
type ErrorCode string

const (
	// CodeInvalidArgument marks malformed graph construction or mission endpoints.
	CodeInvalidArgument ErrorCode = "invalid_argument"

	// CodeUnreachable marks a planning request whose end cannot be reached from its start.
	CodeUnreachable ErrorCode = "unreachable"

	// CodePhaseFault marks a phase that signalled a fault while executing.
	CodePhaseFault ErrorCode = "phase_fault"

	// CodeNotFound marks a lookup of an unknown mission.
	CodeNotFound ErrorCode = "not_found"

	// CodeTimeout marks a mission that ran past its execution deadline.
	CodeTimeout ErrorCode = "timeout"

	// CodeCancelled marks a queued mission dropped before it started.
	CodeCancelled ErrorCode = "cancelled"
)

// Sentinel errors for errors.Is comparisons. Matching is by code, so any
// *Error carrying the same code satisfies errors.Is against these.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrUnreachable     = &Error{Code: CodeUnreachable, Message: "end node is unreachable"}
	ErrPhaseFault      = &Error{Code: CodePhaseFault, Message: "phase fault"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrTimeout         = &Error{Code: CodeTimeout, Message: "mission timed out"}
	ErrCancelled       = &Error{Code: CodeCancelled, Message: "mission cancelled"}
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
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

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewError creates a coded error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError creates a coded error around an existing cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// InvalidArgument is shorthand for NewError(CodeInvalidArgument, ...).
func InvalidArgument(format string, args ...any) *Error {
	return NewError(CodeInvalidArgument, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
