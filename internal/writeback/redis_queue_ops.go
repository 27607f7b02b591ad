package writeback

import (
	"context"
)

// RedisQueueOperations are the Redis list operations the Redis queue runs
// on. kvstore.RedisKVStore implements them.
type RedisQueueOperations interface {
	// ListPush adds a value to the end of a list (RPUSH).
	ListPush(ctx context.Context, key string, value []byte) error

	// ListPop removes and returns the first element from a list (LPOP).
	// Returns nil if the list is empty.
	ListPop(ctx context.Context, key string) ([]byte, error)

	// ListLength returns the length of a list (LLEN).
	ListLength(ctx context.Context, key string) (int64, error)
}
