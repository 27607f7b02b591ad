package core

import (
	"context"
	"time"
)

// KVStore defines the key-value operations the cache slots are kept in.
// Implementations cover an in-process map, Redis and DynamoDB.
type KVStore interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a key-value pair with an optional TTL.
	// If ttl is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the store.
	Exists(ctx context.Context, key string) (bool, error)

	// BatchSet stores multiple key-value pairs with a shared TTL.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close closes the connection to the KV store and releases resources.
	Close() error
}
