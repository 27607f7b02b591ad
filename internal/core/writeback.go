package core

import (
	"context"
	"time"
)

// OrderWrite is a single display-position write that failed against the
// remote store and is waiting to be retried.
type OrderWrite struct {
	// CardID owns the product.
	CardID string `json:"card_id"`

	// ProductID is the product whose position is written.
	ProductID string `json:"product_id"`

	// Position is the ordem value to persist.
	Position int `json:"position"`

	// Generation identifies the reorder that produced the write. A later
	// reorder of the same card has a larger generation.
	Generation int64 `json:"generation"`

	// Timestamp is when the write was first attempted.
	Timestamp time.Time `json:"timestamp"`

	// RetryCount tracks how many times this write has been retried.
	RetryCount int `json:"retry_count"`

	// LastError is the message of the most recent failure.
	LastError string `json:"last_error,omitempty"`
}

// WriteBackQueue holds order writes until the drainer retries them.
type WriteBackQueue interface {
	// Enqueue adds a write to the queue.
	Enqueue(ctx context.Context, write *OrderWrite) error

	// Dequeue retrieves up to batchSize writes.
	// Returns an empty slice if no writes are available.
	Dequeue(ctx context.Context, batchSize int) ([]*OrderWrite, error)

	// Size returns the current number of writes in the queue.
	Size() int

	// Close closes the queue and releases resources.
	Close() error
}
