package core

import "errors"

var (
	// ErrNotFound is returned when no record matches the requested identifiers.
	ErrNotFound = errors.New("not found")

	// ErrNegativeShipping is returned when a shipping value below zero is written.
	ErrNegativeShipping = errors.New("negative not allowed")

	// ErrNoFields is returned by partial updates that carry no field.
	ErrNoFields = errors.New("no fields to update")

	// ErrKeyNotFound is returned by a KVStore when the key is absent or expired.
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed is returned by stores and queues used after Close.
	ErrClosed = errors.New("closed")
)
