package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

// RedisKVStore implements the core.KVStore interface using Redis. It also
// exposes the list operations the Redis retry queue is built on.
type RedisKVStore struct {
	client *redis.Client
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisKVStore connects to the first endpoint and pings it.
func NewRedisKVStore(cfg config.KVStoreConfig, logger *zap.Logger) (*RedisKVStore, error) {
	if len(cfg.Redis.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Single node only; cluster endpoints beyond the first are ignored.
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Endpoints[0],
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Endpoints[0]), zap.Int("db", cfg.Redis.DB))
	return NewRedisKVStoreFromClient(client, logger), nil
}

// NewRedisKVStoreFromClient wraps an existing client.
func NewRedisKVStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisKVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisKVStore{client: client, logger: logger}
}

// Get retrieves a value by key from the store.
func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, core.ErrClosed
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	if err != nil {
		r.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	r.logger.Debug("redis get", zap.String("key", key), zap.Int("bytes", len(val)))
	return val, nil
}

// Set stores a key-value pair with an optional TTL.
func (r *RedisKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	r.logger.Debug("redis set", zap.String("key", key), zap.Int("bytes", len(value)), zap.Duration("ttl", ttl))
	return nil
}

// Delete removes a key from the store.
func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in the store.
func (r *RedisKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if r.closed.Load() {
		return false, core.ErrClosed
	}
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}

// BatchSet stores multiple key-value pairs in one pipeline with a shared TTL.
func (r *RedisKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	if ttl < 0 {
		ttl = 0
	}
	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to batch set keys: %w", err)
	}
	return nil
}

// Close closes the connection to the KV store.
func (r *RedisKVStore) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

// Client returns the underlying Redis client.
func (r *RedisKVStore) Client() *redis.Client {
	return r.client
}

// ListPush adds a value to the end of a list (RPUSH).
func (r *RedisKVStore) ListPush(ctx context.Context, key string, value []byte) error {
	if r.closed.Load() {
		return core.ErrClosed
	}
	return r.client.RPush(ctx, key, value).Err()
}

// ListPop removes and returns the first element from a list (LPOP).
// It returns nil, nil when the list is empty.
func (r *RedisKVStore) ListPop(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, core.ErrClosed
	}
	val, err := r.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// ListLength returns the length of a list (LLEN).
func (r *RedisKVStore) ListLength(ctx context.Context, key string) (int64, error) {
	if r.closed.Load() {
		return 0, core.ErrClosed
	}
	return r.client.LLen(ctx, key).Result()
}

// RedisKVStoreFactory creates Redis KV stores.
type RedisKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *RedisKVStoreFactory) Type() string { return "redis" }

// Validate validates the Redis-specific configuration.
func (f *RedisKVStoreFactory) Validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kv := cfg.KVStore
	if kv.Type != "redis" {
		return fmt.Errorf("invalid type for Redis validator: %s", kv.Type)
	}
	if len(kv.Redis.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required for Redis")
	}
	if kv.Redis.DB < 0 || kv.Redis.DB > 15 {
		return fmt.Errorf("Redis DB must be between 0 and 15, got: %d", kv.Redis.DB)
	}
	if kv.Redis.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be greater than 0, got: %d", kv.Redis.PoolSize)
	}
	if kv.Redis.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns must be non-negative, got: %d", kv.Redis.MinIdleConns)
	}
	return validateTimeouts(kv)
}

// Create creates a new Redis KV store.
func (f *RedisKVStoreFactory) Create(cfg config.KVStoreConfig, logger *zap.Logger) (core.KVStore, error) {
	store, err := NewRedisKVStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis KV store: %w", err)
	}
	return store, nil
}

func validateTimeouts(kv config.KVStoreConfig) error {
	if kv.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be greater than 0, got: %v", kv.DialTimeout)
	}
	if kv.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be greater than 0, got: %v", kv.ReadTimeout)
	}
	if kv.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be greater than 0, got: %v", kv.WriteTimeout)
	}
	if kv.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", kv.MaxRetries)
	}
	return nil
}

func init() {
	RegisterFactory(&RedisKVStoreFactory{})
}
