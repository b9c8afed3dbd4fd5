package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts passes across a whole run and enforces a limit.
//
// Rules whose conditions never become false loop forever; that is a
// program-authoring error, not an engine defect. The quota is the
// optional guard against it. A limit of 0 means unlimited.
type QuotaEnforcer struct {
	maxPasses int
	current   int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxPasses int) *QuotaEnforcer {
	return &QuotaEnforcer{maxPasses: maxPasses}
}

// Check counts one pass and validates it against the limit.
//
// Returns PassesExceededError once the count goes over the limit.
// Called before every pass.
func (q *QuotaEnforcer) Check() error {
	q.current++
	if q.maxPasses > 0 && q.current > q.maxPasses {
		return &PassesExceededError{Passes: q.current, Limit: q.maxPasses}
	}
	return nil
}

// Current returns the number of passes counted so far.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxPasses returns the limit (0 = unlimited).
func (q *QuotaEnforcer) MaxPasses() int {
	return q.maxPasses
}

// PassesExceededError is returned when a run exceeds its pass quota.
// The engine wraps it in a RuntimeError with ErrCodePassLimitExceeded.
type PassesExceededError struct {
	Passes int
	Limit  int
}

// Error implements the error interface.
func (e *PassesExceededError) Error() string {
	return fmt.Sprintf("pass %d exceeds limit of %d", e.Passes, e.Limit)
}

// IsPassesExceededError returns true if the error is a PassesExceededError.
// Uses errors.As to handle wrapped errors.
func IsPassesExceededError(err error) bool {
	var pe *PassesExceededError
	return errors.As(err, &pe)
}
