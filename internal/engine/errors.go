package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/banish/internal/ir"
)

// ErrNotLinked is returned by New for a program that has not been through
// compiler.Link.
var ErrNotLinked = errors.New("engine: program is not linked")

// RuntimeError represents a failure during a run.
//
// Runtime errors include:
//   - Host failures: a condition, statement or return value raised an error
//   - Pass quota: the run exceeded WithMaxPasses
//   - Cancellation: the run context was cancelled or timed out
//   - Missing return: the run fell off the last state under WithRequireReturn
//
// Effects of host actions that already ran are not rolled back.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// State and Rule locate the failure. Rule is empty for errors raised
	// between passes.
	State string
	Rule  string

	// Pos is the source position of the failing fragment, if known.
	Pos ir.Pos

	// Err is the underlying host or context error.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeConditionFailed indicates a condition could not be evaluated.
	ErrCodeConditionFailed RuntimeErrorCode = "CONDITION_FAILED"

	// ErrCodeActionFailed indicates a host statement failed.
	ErrCodeActionFailed RuntimeErrorCode = "ACTION_FAILED"

	// ErrCodeReturnFailed indicates a return value could not be evaluated.
	ErrCodeReturnFailed RuntimeErrorCode = "RETURN_FAILED"

	// ErrCodePassLimitExceeded indicates the run exceeded its pass quota.
	ErrCodePassLimitExceeded RuntimeErrorCode = "PASS_LIMIT_EXCEEDED"

	// ErrCodeCanceled indicates the run context ended before the run did.
	ErrCodeCanceled RuntimeErrorCode = "CANCELED"

	// ErrCodeNoReturn indicates the run fell off the last state while a
	// return was required.
	ErrCodeNoReturn RuntimeErrorCode = "NO_RETURN"

	// ErrCodeRecordFailed indicates an observer rejected a trace event.
	ErrCodeRecordFailed RuntimeErrorCode = "RECORD_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.State != "" && e.Rule != "":
		msg = fmt.Sprintf("%s (state=%s, rule=%s)", msg, e.State, e.Rule)
	case e.State != "":
		msg = fmt.Sprintf("%s (state=%s)", msg, e.State)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the RuntimeErrorCode carried by err, or "" if err is not
// a RuntimeError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsQuotaError returns true if the error is a pass quota error.
func IsQuotaError(err error) bool {
	return CodeOf(err) == ErrCodePassLimitExceeded
}

// IsCanceled returns true if the run ended because its context did.
func IsCanceled(err error) bool {
	return CodeOf(err) == ErrCodeCanceled
}
