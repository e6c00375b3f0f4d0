// Package apperr defines the stable error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, caller-visible error category
type Kind string

const (
	Unauthenticated        Kind = "UNAUTHENTICATED"
	Forbidden              Kind = "FORBIDDEN"
	ValidationFailed       Kind = "VALIDATION_FAILED"
	StateConflict          Kind = "STATE_CONFLICT"
	CourseNotAvailable     Kind = "COURSE_NOT_AVAILABLE"
	LessonLocked           Kind = "LESSON_LOCKED"
	NotFound               Kind = "NOT_FOUND"
	IdempotencyKeyConflict Kind = "IDEMPOTENCY_KEY_CONFLICT"
	Unavailable            Kind = "UNAVAILABLE"
	Internal               Kind = "INTERNAL"
)

var statusByKind = map[Kind]int{
	Unauthenticated:        http.StatusUnauthorized,
	Forbidden:              http.StatusForbidden,
	ValidationFailed:       http.StatusBadRequest,
	StateConflict:          http.StatusConflict,
	CourseNotAvailable:     http.StatusConflict,
	LessonLocked:           http.StatusLocked,
	NotFound:               http.StatusNotFound,
	IdempotencyKeyConflict: http.StatusUnprocessableEntity,
	Unavailable:            http.StatusServiceUnavailable,
	Internal:               http.StatusInternalServerError,
}

// HTTPStatus returns the status code a kind is served with
func (k Kind) HTTPStatus() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is an error with a stable kind and a caller-safe message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps the underlying cause
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal when err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// MessageOf returns the caller-safe message of err. Errors without a kind
// never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
