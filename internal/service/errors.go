package service

import (
	"errors"
	"fmt"
)

// Error kinds.  Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrPrecondition      = errors.New("precondition failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrStorage           = errors.New("storage failure")
)

// Machine readable codes attached to errors and returned to clients.
const (
	CodeInvalidInput       = "invalid_input"
	CodeSessionRequired    = "session_required"
	CodeSeatNotFound       = "seat_not_found"
	CodeRowNotFound        = "row_not_found"
	CodeSeatUnavailable    = "seat_unavailable"
	CodeSeatAlreadyBooked  = "seat_already_booked"
	CodeSeatHeld           = "seat_held"
	CodeSeatHasBooking     = "seat_has_booking"
	CodeBookingNotFound    = "booking_not_found"
	CodeInvalidCode        = "invalid_code"
	CodeRetrievalNotFound  = "retrieval_not_found"
	CodeBookingsExist      = "bookings_exist"
	CodeLayoutNotSet       = "layout_not_configured"
	CodeCodeSpaceExhausted = "code_space_exhausted"
	CodeStorage            = "storage_error"
	CodeUnauthorized       = "unauthorized"
	CodeTokensDisabled     = "tokens_disabled"
)

// Error is a classified failure with a message fit for end users.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func validationError(code, format string, args ...interface{}) *Error {
	return newError(ErrValidation, code, format, args...)
}

func notFoundError(code, format string, args ...interface{}) *Error {
	return newError(ErrNotFound, code, format, args...)
}

func conflictError(code, format string, args ...interface{}) *Error {
	return newError(ErrConflict, code, format, args...)
}

// storageError wraps a persistence failure.  Errors that are already
// classified pass through unchanged so a NotFound raised inside a
// transaction is not reported as a storage failure.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: ErrStorage, Code: CodeStorage, Message: op, Err: err}
}

// AsError returns the classified error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
