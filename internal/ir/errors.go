package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes relay errors.
type ErrorCode string

const (
	// ErrCodeUnsupported indicates a command variant that cannot be encoded.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeUnauthorized indicates the caller is not the admin or owner.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeEncodingPrecondition indicates a required field could not be
	// computed or was not carried by the command.
	ErrCodeEncodingPrecondition ErrorCode = "ENCODING_PRECONDITION"

	// ErrCodeDownstreamFailure indicates the outer relay call did not complete.
	// Only ever reported through a reply, never returned synchronously.
	ErrCodeDownstreamFailure ErrorCode = "DOWNSTREAM_FAILURE"

	// ErrCodeTokenInFlight indicates a reply token already has a pending batch.
	ErrCodeTokenInFlight ErrorCode = "TOKEN_IN_FLIGHT"
)

// Error is the typed error returned by relay components.
//
// Index is the position of the offending command in its batch, or -1 when the
// error is not tied to a single command.
type Error struct {
	Code    ErrorCode
	Message string
	Index   int
	Kind    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Index >= 0 && e.Kind != "" {
		return fmt.Sprintf("%s: %s (command=%d, kind=%s)", e.Code, e.Message, e.Index, e.Kind)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnsupportedError creates an Error for a command kind with no catalog entry.
func NewUnsupportedError(kind string) *Error {
	return &Error{
		Code:    ErrCodeUnsupported,
		Message: "operation not supported",
		Index:   -1,
		Kind:    kind,
	}
}

// NewUnauthorizedError creates an Error for a rejected admin or owner check.
func NewUnauthorizedError(caller string) *Error {
	return &Error{
		Code:    ErrCodeUnauthorized,
		Message: fmt.Sprintf("sender %q is not authorized", caller),
		Index:   -1,
	}
}

// NewPreconditionError creates an Error for a field the encoder could not fill.
func NewPreconditionError(kind, field string) *Error {
	return &Error{
		Code:    ErrCodeEncodingPrecondition,
		Message: fmt.Sprintf("field %q cannot be derived", field),
		Index:   -1,
		Kind:    kind,
	}
}

// NewDownstreamError creates an Error describing a failed relay hop.
func NewDownstreamError(reason string) *Error {
	return &Error{
		Code:    ErrCodeDownstreamFailure,
		Message: reason,
		Index:   -1,
	}
}

// NewTokenInFlightError creates an Error for a reply token that is still pending.
func NewTokenInFlightError(token uint64, pending string) *Error {
	return &Error{
		Code:    ErrCodeTokenInFlight,
		Message: fmt.Sprintf("reply token %d is in flight for dispatch %s", token, pending),
		Index:   -1,
	}
}

// AtIndex returns a copy of err annotated with the command position in its
// batch. Non-*Error values are returned unchanged.
func AtIndex(err error, index int) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Index = index
	return &cp
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUnsupported reports whether err is an UNSUPPORTED_OPERATION error.
func IsUnsupported(err error) bool { return CodeOf(err) == ErrCodeUnsupported }

// IsUnauthorized reports whether err is an UNAUTHORIZED error.
func IsUnauthorized(err error) bool { return CodeOf(err) == ErrCodeUnauthorized }

// IsPrecondition reports whether err is an ENCODING_PRECONDITION error.
func IsPrecondition(err error) bool { return CodeOf(err) == ErrCodeEncodingPrecondition }

// IsDownstream reports whether err is a DOWNSTREAM_FAILURE error.
func IsDownstream(err error) bool { return CodeOf(err) == ErrCodeDownstreamFailure }

// IsTokenInFlight reports whether err is a TOKEN_IN_FLIGHT error.
func IsTokenInFlight(err error) bool { return CodeOf(err) == ErrCodeTokenInFlight }
