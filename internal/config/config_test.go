package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/config"
	_ "github.com/rzpsarthak13/cardtable/internal/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Validate(cfg))
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Table.DebounceDelay)
	assert.Equal(t, int64(5*1024*1024), cfg.Table.MaxImageSize)
	assert.Equal(t, 50, cfg.Drainer.Rate)
	assert.Equal(t, 5, cfg.Drainer.MaxRetries)
}

func TestLoadFromYAML(t *testing.T) {
	m := config.NewManager()
	err := m.LoadFromYAML([]byte(`
remote:
  type: sql
  database:
    driver: sqlite
    path: ":memory:"
cache:
  ttl: 30s
retry_queue:
  type: none
`))
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "sql", cfg.Remote.Type)
	assert.Equal(t, ":memory:", cfg.Remote.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "none", cfg.RetryQueue.Type)
	// untouched sections keep their defaults
	assert.Equal(t, "memory", cfg.KVStore.Type)
	assert.Equal(t, "pt-BR", cfg.Table.Locale)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cardtable.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http":{"addr":":9090"}}`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)

	bad := filepath.Join(dir, "cardtable.toml")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o600))
	_, err = config.Load(bad)
	assert.ErrorContains(t, err, "unsupported config file format")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CARDTABLE_CACHE_TTL", "2m")
	t.Setenv("CARDTABLE_KVSTORE_TYPE", "redis")
	t.Setenv("CARDTABLE_KVSTORE_REDIS_ENDPOINTS", "a:6379,b:6379")
	t.Setenv("CARDTABLE_RETRY_QUEUE_TYPE", "redis")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "redis", cfg.KVStore.Type)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.KVStore.Redis.Endpoints)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{"unknown remote", func(c *config.Config) { c.Remote.Type = "ftp" }, "remote.type"},
		{"zero ttl", func(c *config.Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"unknown kvstore", func(c *config.Config) { c.KVStore.Type = "etcd" }, "unsupported KV store type"},
		{"redis without endpoints", func(c *config.Config) {
			c.KVStore.Type = "redis"
			c.KVStore.Redis.Endpoints = nil
		}, "endpoint"},
		{"dynamodb without table", func(c *config.Config) {
			c.KVStore.Type = "dynamodb"
			c.KVStore.DynamoDB.TableName = ""
		}, "table_name"},
		{"redis queue on memory kv", func(c *config.Config) { c.RetryQueue.Type = "redis" }, "requires kvstore.type 'redis'"},
		{"kafka without brokers", func(c *config.Config) { c.RetryQueue.Type = "kafka" }, "brokers"},
		{"mysql without host", func(c *config.Config) {
			c.Remote.Type = "sql"
			c.Remote.Database.Driver = "mysql"
		}, "host"},
		{"drainer zero rate", func(c *config.Config) { c.Drainer.Rate = 0 }, "drainer.rate"},
		{"zero max image", func(c *config.Config) { c.Table.MaxImageSize = 0 }, "max_image_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
	assert.Error(t, config.Validate(nil))
}

func TestGetReturnsCopy(t *testing.T) {
	m := config.NewManager()
	cfg := m.Get()
	cfg.KVStore.Redis.Endpoints[0] = "changed:1"
	cfg.Cache.TTL = time.Hour
	again := m.Get()
	assert.Equal(t, "localhost:6379", again.KVStore.Redis.Endpoints[0])
	assert.Equal(t, 60*time.Second, again.Cache.TTL)
}
