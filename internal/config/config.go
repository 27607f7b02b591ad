// Package config loads the cardtable configuration from defaults, YAML or
// JSON files and CARDTABLE_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "CARDTABLE_"

// Config is the full configuration of a cardtable client or server.
type Config struct {
	Remote     RemoteConfig     `yaml:"remote" json:"remote" envPrefix:"REMOTE_"`
	Cache      CacheConfig      `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	KVStore    KVStoreConfig    `yaml:"kvstore" json:"kvstore" envPrefix:"KVSTORE_"`
	RetryQueue RetryQueueConfig `yaml:"retry_queue" json:"retry_queue" envPrefix:"RETRY_QUEUE_"`
	Drainer    DrainerConfig    `yaml:"drainer" json:"drainer" envPrefix:"DRAINER_"`
	Table      TableConfig      `yaml:"table" json:"table" envPrefix:"TABLE_"`
	HTTP       HTTPConfig       `yaml:"http" json:"http" envPrefix:"HTTP_"`
	Log        LogConfig        `yaml:"log" json:"log" envPrefix:"LOG_"`
}

// RemoteConfig selects the record store behind the card tables.
type RemoteConfig struct {
	// Type is "sql" or "memory".
	Type string `yaml:"type" json:"type" env:"TYPE"`

	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"REQUEST_TIMEOUT"`

	Database DatabaseConfig `yaml:"database" json:"database" envPrefix:"DATABASE_"`
}

// DatabaseConfig contains configuration for the relational store.
type DatabaseConfig struct {
	// Driver is "mysql", "postgresql" or "sqlite".
	Driver   string `yaml:"driver" json:"driver" env:"DRIVER"`
	Host     string `yaml:"host" json:"host" env:"HOST"`
	Port     int    `yaml:"port" json:"port" env:"PORT"`
	Database string `yaml:"database" json:"database" env:"NAME"`
	Username string `yaml:"username" json:"username" env:"USERNAME"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty" env:"SSL_MODE"`

	// Path is the sqlite file; ":memory:" keeps the database in process.
	Path string `yaml:"path,omitempty" json:"path,omitempty" env:"PATH"`

	// Migrate creates the cards and products tables when missing.
	Migrate bool `yaml:"migrate" json:"migrate" env:"MIGRATE"`

	MaxOpenConns      int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns      int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout" env:"CONNECTION_TIMEOUT"`
}

// CacheConfig controls the per-card read cache.
type CacheConfig struct {
	// TTL is the freshness window shared by every slot of a card cache.
	TTL time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`

	// Namespace prefixes cache keys in the KV store.
	Namespace string `yaml:"namespace" json:"namespace" env:"NAMESPACE"`
}

// KVStoreConfig contains configuration for the store cache slots live in.
type KVStoreConfig struct {
	// Type is "memory", "redis" or "dynamodb".
	Type         string         `yaml:"type" json:"type" env:"TYPE"`
	Redis        RedisConfig    `yaml:"redis,omitempty" json:"redis,omitempty" envPrefix:"REDIS_"`
	DynamoDB     DynamoDBConfig `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty" envPrefix:"DYNAMODB_"`
	MaxRetries   int            `yaml:"max_retries,omitempty" json:"max_retries,omitempty" env:"MAX_RETRIES"`
	DialTimeout  time.Duration  `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration  `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration  `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty" env:"WRITE_TIMEOUT"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints" env:"ENDPOINTS" envSeparator:","`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty" env:"PASSWORD"`
	DB           int      `yaml:"db" json:"db" env:"DB"`
	PoolSize     int      `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int      `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DynamoDBConfig contains DynamoDB-specific configuration.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region" env:"REGION"`
	TableName       string `yaml:"table_name" json:"table_name" env:"TABLE_NAME"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" env:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty" env:"SECRET_ACCESS_KEY"`
}

// RetryQueueConfig selects where failed order writes wait for a retry.
type RetryQueueConfig struct {
	// Type is "none", "memory", "redis" or "kafka".
	Type       string      `yaml:"type" json:"type" env:"TYPE"`
	BufferSize int         `yaml:"buffer_size" json:"buffer_size" env:"BUFFER_SIZE"`
	RedisKey   string      `yaml:"redis_key,omitempty" json:"redis_key,omitempty" env:"REDIS_KEY"`
	Kafka      KafkaConfig `yaml:"kafka,omitempty" json:"kafka,omitempty" envPrefix:"KAFKA_"`
}

// KafkaConfig contains Kafka-specific configuration.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string        `yaml:"topic" json:"topic" env:"TOPIC"`
	GroupID      string        `yaml:"group_id" json:"group_id" env:"GROUP_ID"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout" env:"BATCH_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	RequiredAcks int           `yaml:"required_acks" json:"required_acks" env:"REQUIRED_ACKS"`
	MaxWait      time.Duration `yaml:"max_wait" json:"max_wait" env:"MAX_WAIT"`
}

// DrainerConfig controls the retry drainer for failed order writes.
type DrainerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`

	// Rate is the number of order writes retried per second.
	Rate       int           `yaml:"rate" json:"rate" env:"RATE"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	Interval   time.Duration `yaml:"interval" json:"interval" env:"INTERVAL"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
}

// TableConfig holds the product table controller settings.
type TableConfig struct {
	DebounceDelay time.Duration `yaml:"debounce_delay" json:"debounce_delay" env:"DEBOUNCE_DELAY"`
	MaxImageSize  int64         `yaml:"max_image_size" json:"max_image_size" env:"MAX_IMAGE_SIZE"`
	Locale        string        `yaml:"locale" json:"locale" env:"LOCALE"`
}

// HTTPConfig configures the table server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" json:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level" env:"LEVEL"`
	Development bool   `yaml:"development" json:"development" env:"DEVELOPMENT"`
}

// Default returns a configuration that runs fully in process.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Type:           "memory",
			RequestTimeout: 10 * time.Second,
			Database: DatabaseConfig{
				Driver:            "sqlite",
				Path:              "cardtable.db",
				Migrate:           true,
				MaxOpenConns:      25,
				MaxIdleConns:      5,
				ConnMaxLifetime:   5 * time.Minute,
				ConnMaxIdleTime:   10 * time.Minute,
				ConnectionTimeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			TTL:       60 * time.Second,
			Namespace: "cardtable",
		},
		KVStore: KVStoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Endpoints: []string{"localhost:6379"},
				PoolSize:  10,
			},
			DynamoDB: DynamoDBConfig{
				Region:    "us-east-1",
				TableName: "cardtable-cache",
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		RetryQueue: RetryQueueConfig{
			Type:       "memory",
			BufferSize: 1000,
			RedisKey:   "cardtable:order_retry",
			Kafka: KafkaConfig{
				Topic:        "cardtable-order-retry",
				GroupID:      "cardtable-drainer",
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				ReadTimeout:  10 * time.Second,
				RequiredAcks: 1,
				MaxWait:      500 * time.Millisecond,
			},
		},
		Drainer: DrainerConfig{
			Enabled:    true,
			Rate:       50,
			BatchSize:  20,
			Interval:   time.Second,
			MaxRetries: 5,
		},
		Table: TableConfig{
			DebounceDelay: 500 * time.Millisecond,
			MaxImageSize:  5 * 1024 * 1024,
			Locale:        "pt-BR",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validator validates the part of the configuration owned by one KV store backend.
type Validator interface {
	// Type returns the backend this validator applies to (e.g., "redis").
	Type() string

	// Validate checks the backend-specific configuration.
	Validate(cfg *Config) error
}

var (
	validators   = make(map[string]Validator)
	validatorsMu sync.RWMutex
)

// RegisterValidator registers a KV store validator. It is called from the
// init() function of each backend. Panics on nil, empty or duplicate types.
func RegisterValidator(v Validator) {
	if v == nil {
		panic("validator cannot be nil")
	}
	if v.Type() == "" {
		panic("validator type cannot be empty")
	}
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	if _, exists := validators[v.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", v.Type()))
	}
	validators[v.Type()] = v
}

// LookupValidator returns the validator registered for a KV store type.
func LookupValidator(storeType string) (Validator, bool) {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	v, ok := validators[storeType]
	return v, ok
}

// Manager handles loading the configuration from its sources.
type Manager struct {
	mu     sync.RWMutex
	config *Config
}

// NewManager creates a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load builds a configuration from defaults, the optional file at path and
// the environment, in that order, and validates the result.
func Load(path string) (*Config, error) {
	m := NewManager()
	if path != "" {
		if err := m.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := m.LoadFromEnv(); err != nil {
		return nil, err
	}
	return m.Get(), nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return m.LoadFromYAML(data)
	case ".json":
		return m.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data on top of the defaults.
func (m *Manager) LoadFromYAML(data []byte) error {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return m.Set(cfg)
}

// LoadFromJSON loads configuration from JSON data on top of the defaults.
// Durations are given in nanoseconds.
func (m *Manager) LoadFromJSON(data []byte) error {
	cfg := Default()
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return m.Set(cfg)
}

// LoadFromEnv overrides the current configuration with environment variables.
// Variables follow the pattern CARDTABLE_<SECTION>_<KEY>, for example:
//   - CARDTABLE_REMOTE_TYPE=sql
//   - CARDTABLE_REMOTE_DATABASE_DRIVER=mysql
//   - CARDTABLE_KVSTORE_REDIS_ENDPOINTS=localhost:6379,localhost:6380
//   - CARDTABLE_CACHE_TTL=60s
func (m *Manager) LoadFromEnv() error {
	cfg := m.Get()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return m.Set(cfg)
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.KVStore.Redis.Endpoints = append([]string(nil), m.config.KVStore.Redis.Endpoints...)
	cfg.RetryQueue.Kafka.Brokers = append([]string(nil), m.config.RetryQueue.Kafka.Brokers...)
	return &cfg
}

// Set validates and installs a configuration.
func (m *Manager) Set(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks a configuration. KV store settings are checked by the
// validator registered for the configured type.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch cfg.Remote.Type {
	case "memory":
	case "sql":
		if err := validateDatabase(cfg.Remote.Database); err != nil {
			return err
		}
	default:
		return fmt.Errorf("remote.type must be 'sql' or 'memory', got %q", cfg.Remote.Type)
	}
	if cfg.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("remote.request_timeout must be greater than 0")
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than 0")
	}

	if cfg.KVStore.Type == "" {
		return fmt.Errorf("kvstore.type is required")
	}
	validator, ok := LookupValidator(cfg.KVStore.Type)
	if !ok {
		return fmt.Errorf("unsupported KV store type: %s", cfg.KVStore.Type)
	}
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("kvstore validation failed: %w", err)
	}

	switch cfg.RetryQueue.Type {
	case "", "none", "redis":
	case "memory":
		if cfg.RetryQueue.BufferSize <= 0 {
			return fmt.Errorf("retry_queue.buffer_size must be greater than 0")
		}
	case "kafka":
		if len(cfg.RetryQueue.Kafka.Brokers) == 0 {
			return fmt.Errorf("retry_queue.kafka.brokers is required when type is 'kafka'")
		}
		if cfg.RetryQueue.Kafka.Topic == "" {
			return fmt.Errorf("retry_queue.kafka.topic is required when type is 'kafka'")
		}
	default:
		return fmt.Errorf("retry_queue.type must be 'none', 'memory', 'redis', or 'kafka'")
	}
	if cfg.RetryQueue.Type == "redis" && cfg.KVStore.Type != "redis" {
		return fmt.Errorf("retry_queue.type 'redis' requires kvstore.type 'redis'")
	}

	if cfg.Drainer.Enabled {
		if cfg.Drainer.Rate <= 0 {
			return fmt.Errorf("drainer.rate must be greater than 0")
		}
		if cfg.Drainer.BatchSize <= 0 {
			return fmt.Errorf("drainer.batch_size must be greater than 0")
		}
		if cfg.Drainer.Interval <= 0 {
			return fmt.Errorf("drainer.interval must be greater than 0")
		}
		if cfg.Drainer.MaxRetries < 0 {
			return fmt.Errorf("drainer.max_retries must be non-negative")
		}
	}

	if cfg.Table.DebounceDelay < 0 {
		return fmt.Errorf("table.debounce_delay must be non-negative")
	}
	if cfg.Table.MaxImageSize <= 0 {
		return fmt.Errorf("table.max_image_size must be greater than 0")
	}
	return nil
}

func validateDatabase(db DatabaseConfig) error {
	switch db.Driver {
	case "sqlite":
		if db.Path == "" {
			return fmt.Errorf("remote.database.path is required for sqlite")
		}
		return nil
	case "mysql", "postgresql":
	default:
		return fmt.Errorf("remote.database.driver must be 'mysql', 'postgresql' or 'sqlite'")
	}
	if db.Host == "" {
		return fmt.Errorf("remote.database.host is required")
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("remote.database.port must be between 1 and 65535")
	}
	if db.Database == "" {
		return fmt.Errorf("remote.database.database is required")
	}
	if db.Username == "" {
		return fmt.Errorf("remote.database.username is required")
	}
	if db.MaxOpenConns <= 0 {
		return fmt.Errorf("remote.database.max_open_conns must be greater than 0")
	}
	return nil
}
