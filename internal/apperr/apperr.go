// Package apperr defines the typed errors that cross repository boundaries.
//
// Repositories return these for domain failures; HTTP handlers map them to a
// status with HTTPStatus. Tenant isolation failures use NotFound so callers
// cannot tell "exists elsewhere" apart from "does not exist".
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeValidation   Code = "VALIDATION"
	CodeConflict     Code = "CONFLICT"
	CodeRenderFailed Code = "RENDER_FAILED"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeInternal     Code = "INTERNAL"
)

func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeRenderFailed:
		return http.StatusBadGateway
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code, so errors.Is(err, ErrNotFound)
// works for every not-found message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrRenderFailed = &Error{Code: CodeRenderFailed, Message: "render failed"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrInternal     = &Error{Code: CodeInternal, Message: "internal error"}
)

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationField reports a single offending field.
func ValidationField(field, msg string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Details: map[string]string{field: msg}}
}

func ValidationWithDetails(msg string, details map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Conflictf(format string, args ...interface{}) *Error {
	return Conflict(fmt.Sprintf(format, args...))
}

func RenderFailed(msg string, cause error) *Error {
	return &Error{Code: CodeRenderFailed, Message: msg, cause: cause}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Internal wraps an infrastructure failure.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
