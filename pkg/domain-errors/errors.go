// Package domainerrors carries the error taxonomy services hand to transports.
//
// Stores return sentinel facts (see pkg/platform/sentinel); services translate
// them into coded errors here; handlers map codes onto HTTP responses via
// pkg/platform/httputil. Codes are stable strings because they are written to
// API responses and audit logs.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	CodeValidation      Code = "validation_error"
	CodeBadRequest      Code = "bad_request"
	CodeInvalidInput    Code = "invalid_input"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeExternalService Code = "external_service_error"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal_error"

	// CodeInvariantViolation is raised by model constructors. Services convert it
	// to CodeValidation before it leaves the domain.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error. Message is safe to show to API clients unless
// the code is CodeInternal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// Is is shorthand for HasCode, kept for handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost coded error in the chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// MessageOf returns the client-safe message, or "" when err is not coded.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
