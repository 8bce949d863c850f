package storage

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrGuestNotFound     = errors.New("guest not found")
	ErrFlowNotFound      = errors.New("flow not found")
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrGuestExists indicates the phone number is already on the event's list.
	ErrGuestExists = errors.New("guest already exists")

	// ErrExecutionExists indicates a record for the (flow, guest) pair is
	// already stored. Callers treat it as "someone else got there first".
	ErrExecutionExists = errors.New("execution already exists")
)

// ConflictError wraps ErrExecutionExists with the pair that collided.
type ConflictError struct {
	FlowID  string
	GuestID string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("execution for flow %s and guest %s: %v", e.FlowID, e.GuestID, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func newConflict(flowID, guestID string) error {
	return &ConflictError{FlowID: flowID, GuestID: guestID, Err: ErrExecutionExists}
}

// IsNotFound reports whether err means a referenced record is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrGuestNotFound) ||
		errors.Is(err, ErrFlowNotFound) ||
		errors.Is(err, ErrExecutionNotFound)
}

// IsConflict reports whether err is an execution uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrExecutionExists)
}
