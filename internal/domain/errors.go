package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine failure
type ErrorKind string

const (
	ErrorBadRequest    ErrorKind = "BadRequest"    // Malformed input, schema violation, invalid transition
	ErrorNotFound      ErrorKind = "NotFound"      // Missing entity, lock, version or principal
	ErrorNotAuthorized ErrorKind = "NotAuthorized" // Auth key mismatch
	ErrorConflict      ErrorKind = "Conflict"      // Lock contention, unique index collision
	ErrorGeneric       ErrorKind = "Generic"       // Unexpected storage failure
)

// Error is the error type returned by every engine operation
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrBadRequest    = &Error{Kind: ErrorBadRequest}
	ErrNotFound      = &Error{Kind: ErrorNotFound}
	ErrNotAuthorized = &Error{Kind: ErrorNotAuthorized}
	ErrConflict      = &Error{Kind: ErrorConflict}
	ErrGeneric       = &Error{Kind: ErrorGeneric}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// BadRequest creates a BadRequest error
func BadRequest(format string, args ...any) *Error {
	return newError(ErrorBadRequest, format, args...)
}

// NotFound creates a NotFound error
func NotFound(format string, args ...any) *Error {
	return newError(ErrorNotFound, format, args...)
}

// NotAuthorized creates a NotAuthorized error
func NotAuthorized(format string, args ...any) *Error {
	return newError(ErrorNotAuthorized, format, args...)
}

// Conflict creates a Conflict error
func Conflict(format string, args ...any) *Error {
	return newError(ErrorConflict, format, args...)
}

// Generic wraps an unexpected failure, keeping the original message
func Generic(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrorGeneric, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are Generic.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorGeneric
}

// AsError converts any error into an *Error, wrapping foreign errors as Generic
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Generic(err)
}

// Result is a discriminated value-or-error, used where a caller receives
// many independent outcomes at once
type Result[T any] struct {
	Value T      `json:"value"`
	Err   *Error `json:"error,omitempty"`
}

// Ok wraps a successful value
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Fail wraps a failure
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: AsError(err)}
}

// IsOk reports whether the result holds a value
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// ValueOrPanic returns the value or panics with the error. Intended for tools and tests.
func (r Result[T]) ValueOrPanic() T {
	if r.Err != nil {
		panic(r.Err)
	}
	return r.Value
}
