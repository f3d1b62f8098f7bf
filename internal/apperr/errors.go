// ABOUTME: Typed error taxonomy shared by the club, membership and feed managers
// ABOUTME: Each Code maps 1:1 to an HTTP status used by the request gateway

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error category.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeAuthentication     Code = "AUTHENTICATION"
	CodeAuthorization      Code = "AUTHORIZATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeTransientStorage   Code = "TRANSIENT_STORAGE"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus returns the status code the gateway writes for this category.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeTransientStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the request unchanged.
func (c Code) Retryable() bool {
	return c == CodeTransientStorage
}

// Error is the domain error type returned by every core operation.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, apperr.ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrAuthentication     = &Error{Code: CodeAuthentication, Message: "not authenticated"}
	ErrAuthorization      = &Error{Code: CodeAuthorization, Message: "not authorized"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInvariantViolation = &Error{Code: CodeInvariantViolation, Message: "invariant violation"}
	ErrTransientStorage   = &Error{Code: CodeTransientStorage, Message: "storage temporarily unavailable"}
)

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that keeps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return Newf(CodeAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return Newf(CodeConflict, format, args...)
}

func Invariant(format string, args ...any) *Error {
	return Newf(CodeInvariantViolation, format, args...)
}

// CodeOf extracts the code of the first *Error in the chain. Errors that carry
// no code are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsDomain reports whether err is an expected business failure rather than an
// infrastructure error.
func IsDomain(err error) bool {
	switch CodeOf(err) {
	case "", CodeInternal, CodeTransientStorage:
		return false
	default:
		return true
	}
}

// PublicMessage returns the message safe to show a caller. Internal errors are
// reduced to a generic message so storage details do not leak.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}
