package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected by the engine while accepting
// or processing an event.
type RuntimeError struct {
	Code       RuntimeErrorCode
	Message    string
	DispatchID string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts events.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeInvalidEvent indicates an event is missing required fields.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"

	// ErrCodeNotPending indicates a dispatch is unknown or already answered.
	ErrCodeNotPending RuntimeErrorCode = "NOT_PENDING"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.DispatchID != "" {
		return fmt.Sprintf("%s: %s (dispatch=%s)", e.Code, e.Message, e.DispatchID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStopped reports whether err says the engine was stopped.
func IsStopped(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// IsInvalidEvent reports whether err rejects a malformed event.
func IsInvalidEvent(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidEvent
	}
	return false
}

// IsNotPending reports whether err refused to abandon a dispatch that is
// not waiting for a reply.
func IsNotPending(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNotPending
	}
	return false
}

func newStoppedError(dispatchID string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeStopped,
		Message:    "engine is stopped",
		DispatchID: dispatchID,
	}
}

func newInvalidEventError(dispatchID, msg string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeInvalidEvent,
		Message:    msg,
		DispatchID: dispatchID,
	}
}

func newNotPendingError(dispatchID, msg string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeNotPending,
		Message:    msg,
		DispatchID: dispatchID,
	}
}
