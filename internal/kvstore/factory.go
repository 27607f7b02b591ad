package kvstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

// Factory is the Strategy interface for creating KV store implementations.
// Each backend registers one from its init() function; the same value also
// validates the backend's configuration.
type Factory interface {
	config.Validator

	// Create builds a KV store from the backend configuration.
	Create(cfg config.KVStoreConfig, logger *zap.Logger) (core.KVStore, error)
}

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// RegisterFactory registers a KV store factory and its config validator.
// Panics on nil, empty or duplicate types.
func RegisterFactory(factory Factory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[factory.Type()]; exists {
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}
	factories[factory.Type()] = factory
	config.RegisterValidator(factory)
}

// Create builds the KV store selected by cfg.Type.
func Create(cfg config.KVStoreConfig, logger *zap.Logger) (core.KVStore, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("kvstore type is required")
	}

	factoriesMu.RLock()
	factory, exists := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported KV store type: %s", cfg.Type)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return factory.Create(cfg, logger.Named("kvstore").With(zap.String("type", cfg.Type)))
}

// RegisteredTypes returns the registered KV store types, sorted.
func RegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsTypeRegistered checks if a KV store type is registered.
func IsTypeRegistered(storeType string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	_, exists := factories[storeType]
	return exists
}
