// Package domainerrors provides coded errors that cross service boundaries.
//
// Services attach a Code so transports can map failures to status codes
// without string matching, and so callers can branch on failure class with
// HasCode. Use sentinel errors (pkg/platform/sentinel) for infrastructure
// facts; use these for domain outcomes.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks input that fails domain validation rules.
	CodeValidation Code = "validation"
	// CodeBadRequest marks malformed or unparsable requests.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks requests without an established caller.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks callers lacking permission for the operation.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks references to records that do not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict marks operations losing a uniqueness or state race.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks aggregate-level invariant breaches.
	CodeInvariantViolation Code = "invariant_violation"
	// CodePaymentRequired marks insufficient payment on payable operations.
	CodePaymentRequired Code = "payment_required"
	// CodeUnavailable marks dependencies that refused or timed out.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks unexpected failures; details stay out of responses.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Wrapped causes stay reachable through
// errors.Is / errors.As.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or empty when uncoded.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
