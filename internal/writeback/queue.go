// Package writeback queues order writes that failed against the remote
// store so they can be retried later.
package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

const (
	defaultBatchSize = 100
	defaultRedisKey  = "cardtable:order_retry"
)

var (
	// ErrQueueClosed is returned when trying to enqueue to a closed queue.
	ErrQueueClosed = errors.New("retry queue is closed")

	// ErrInvalidWrite is returned when an invalid order write is provided.
	ErrInvalidWrite = errors.New("invalid order write")

	// ErrRedisOperationsNotSupported is returned when the KVStore doesn't support Redis list operations.
	ErrRedisOperationsNotSupported = errors.New("KVStore does not support Redis list operations")
)

func validateWrite(write *core.OrderWrite) error {
	if write == nil {
		return ErrInvalidWrite
	}
	if write.CardID == "" || write.ProductID == "" {
		return fmt.Errorf("%w: card and product ids are required", ErrInvalidWrite)
	}
	if write.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidWrite, write.Position)
	}
	if write.Timestamp.IsZero() {
		write.Timestamp = time.Now()
	}
	return nil
}

// RedisQueue implements core.WriteBackQueue on one Redis list, so queued
// writes survive restarts and are shared across processes.
type RedisQueue struct {
	ops    RedisQueueOperations
	key    string
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisQueue creates a queue on the list at key. kvStore must implement
// RedisQueueOperations.
func NewRedisQueue(kvStore core.KVStore, key string, logger *zap.Logger) (*RedisQueue, error) {
	ops, ok := kvStore.(RedisQueueOperations)
	if !ok {
		return nil, ErrRedisOperationsNotSupported
	}
	if key == "" {
		key = defaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{ops: ops, key: key, logger: logger.Named("writeback.redis")}, nil
}

// Enqueue pushes the JSON encoded write to the tail of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, write *core.OrderWrite) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := validateWrite(write); err != nil {
		return err
	}

	data, err := json.Marshal(write)
	if err != nil {
		return fmt.Errorf("failed to marshal order write: %w", err)
	}
	if err := q.ops.ListPush(ctx, q.key, data); err != nil {
		return fmt.Errorf("failed to enqueue order write: %w", err)
	}
	return nil
}

// Dequeue pops up to batchSize writes from the head of the list. Entries
// that cannot be decoded are dropped.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.OrderWrite, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	writes := make([]*core.OrderWrite, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		data, err := q.ops.ListPop(ctx, q.key)
		if err != nil {
			if len(writes) == 0 {
				return nil, fmt.Errorf("failed to dequeue order write: %w", err)
			}
			break
		}
		if data == nil {
			break
		}

		var w core.OrderWrite
		if err := json.Unmarshal(data, &w); err != nil {
			q.logger.Warn("dropping undecodable order write", zap.Error(err))
			continue
		}
		writes = append(writes, &w)
	}
	return writes, nil
}

// Size returns the length of the list, or 0 when it cannot be read.
func (q *RedisQueue) Size() int {
	if q.closed.Load() {
		return 0
	}
	length, err := q.ops.ListLength(context.Background(), q.key)
	if err != nil {
		return 0
	}
	return int(length)
}

// Close closes the queue. The list itself is left in Redis.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// New builds the retry queue selected by cfg. It returns nil, nil for type
// "none". A "redis" queue runs on kv, which must be a Redis KV store.
func New(cfg config.RetryQueueConfig, kv core.KVStore, logger *zap.Logger) (core.WriteBackQueue, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryQueue(cfg.BufferSize), nil
	case "redis":
		q, err := NewRedisQueue(kv, cfg.RedisKey, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "kafka":
		q, err := NewKafkaQueue(KafkaQueueConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			GroupID:      cfg.Kafka.GroupID,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			ReadTimeout:  cfg.Kafka.ReadTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			MaxWait:      cfg.Kafka.MaxWait,
		}, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported retry queue type: %s", cfg.Type)
	}
}
