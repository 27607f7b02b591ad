package core

import "errors"

// errUnknownFailure stands in when a failure is built without a cause.
var errUnknownFailure = errors.New("unknown failure")

// Result is the outcome of an operation that never fails past its own
// boundary: either a success carrying data, or a failure carrying an error.
type Result[T any] struct {
	data T
	err  error
}

// Success builds a successful result.
func Success[T any](data T) Result[T] {
	return Result[T]{data: data}
}

// Failure builds a failed result. The zero data value is kept.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errUnknownFailure
	}
	return Result[T]{err: err}
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool { return r.err == nil }

// Data returns the carried data. It is the zero value on failure.
func (r Result[T]) Data() T { return r.data }

// Err returns the failure cause, or nil on success.
func (r Result[T]) Err() error { return r.err }

// Message returns the failure message, or "" on success.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Unwrap splits the result into the usual Go pair.
func (r Result[T]) Unwrap() (T, error) { return r.data, r.err }
