package cardtable

import (
	"github.com/rzpsarthak13/cardtable/internal/config"
	"go.uber.org/zap"
)

type (
	// Config is the full client configuration.
	Config = config.Config

	// RemoteConfig selects the record store.
	RemoteConfig = config.RemoteConfig

	// DatabaseConfig configures the relational store.
	DatabaseConfig = config.DatabaseConfig

	// KVStoreConfig configures the store cache slots live in.
	KVStoreConfig = config.KVStoreConfig

	// RedisConfig configures the Redis KV store.
	RedisConfig = config.RedisConfig

	// DynamoDBConfig configures the DynamoDB KV store.
	DynamoDBConfig = config.DynamoDBConfig

	// RetryQueueConfig selects the retry queue of failed order writes.
	RetryQueueConfig = config.RetryQueueConfig

	// KafkaConfig configures the Kafka retry queue.
	KafkaConfig = config.KafkaConfig
)

// DefaultConfig returns a configuration that runs fully in process.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads defaults, the optional file at path and CARDTABLE_*
// environment variables.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// ValidateConfig checks a configuration.
func ValidateConfig(cfg *Config) error { return config.Validate(cfg) }

// NewLogger builds a zap production logger at level ("debug", "info", ...).
// development switches to the console encoder.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom
	return cfg.Build()
}
