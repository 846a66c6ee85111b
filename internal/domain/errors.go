package domain

import (
	"errors"
	"fmt"
)

// Rejection reasons returned synchronously when a strategy start is refused.
// Match with errors.Is.
var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrInvalidAllocation   = errors.New("allocation must be in (0, 1]")
	ErrInsufficientCapital = errors.New("insufficient available allocation")
)

// RejectionError wraps a rejection reason with the user it applies to.
// Rejections carry no side effects: the ledger is untouched.
type RejectionError struct {
	User   string
	Reason error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("start rejected for user %q: %v", e.User, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}
