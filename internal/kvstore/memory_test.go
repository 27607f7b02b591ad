package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	store := NewMemoryKVStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	ok, err := store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	got, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	require.NoError(t, store.Delete(ctx, "b"))
	ok, err = store.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKVStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKVStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryKVStoreBatchSetAndClose(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKVStore()
	require.NoError(t, store.BatchSet(ctx, map[string][]byte{"x": []byte("1"), "y": []byte("2")}, time.Hour))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Close())
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, store.Set(ctx, "x", nil, 0), core.ErrClosed)
}

func TestFactoryRegistry(t *testing.T) {
	assert.Equal(t, []string{"dynamodb", "memory", "redis"}, RegisteredTypes())
	assert.True(t, IsTypeRegistered("memory"))
	assert.False(t, IsTypeRegistered("cassandra"))

	store, err := Create(config.KVStoreConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryKVStore{}, store)

	_, err = Create(config.KVStoreConfig{Type: "cassandra"}, nil)
	assert.Error(t, err)
	_, err = Create(config.KVStoreConfig{}, nil)
	assert.Error(t, err)
}

func TestBackendValidators(t *testing.T) {
	cfg := config.Default()
	cfg.KVStore.Type = "redis"
	assert.NoError(t, (&RedisKVStoreFactory{}).Validate(cfg))

	cfg.KVStore.Redis.DB = 16
	assert.Error(t, (&RedisKVStoreFactory{}).Validate(cfg))

	cfg = config.Default()
	cfg.KVStore.Type = "dynamodb"
	assert.NoError(t, (&DynamoDBKVStoreFactory{}).Validate(cfg))
	cfg.KVStore.DynamoDB.TableName = ""
	assert.Error(t, (&DynamoDBKVStoreFactory{}).Validate(cfg))
}
