package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryKVStore implements core.KVStore with an in-process map.
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
	closed  bool
}

// NewMemoryKVStore creates an empty in-process KV store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a value by key.
func (m *MemoryKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, core.ErrClosed
	}
	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a key-value pair. A zero ttl never expires.
func (m *MemoryKVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrClosed
	}
	m.entries[key] = m.entry(value, ttl)
	return nil
}

func (m *MemoryKVStore) entry(value []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}

// Delete removes a key.
func (m *MemoryKVStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrClosed
	}
	delete(m.entries, key)
	return nil
}

// Exists checks if a live key exists.
func (m *MemoryKVStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, core.ErrClosed
	}
	entry, ok := m.entries[key]
	return ok && !entry.expired(m.now()), nil
}

// BatchSet stores every item with the same ttl under one lock.
func (m *MemoryKVStore) BatchSet(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return core.ErrClosed
	}
	for key, value := range items {
		m.entries[key] = m.entry(value, ttl)
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (m *MemoryKVStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close drops every entry.
func (m *MemoryKVStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// MemoryKVStoreFactory creates in-process KV stores.
type MemoryKVStoreFactory struct{}

// Type returns the type identifier for this factory.
func (f *MemoryKVStoreFactory) Type() string { return "memory" }

// Validate accepts any configuration; the memory store has no settings.
func (f *MemoryKVStoreFactory) Validate(cfg *config.Config) error {
	if cfg.KVStore.Type != "memory" {
		return fmt.Errorf("invalid type for memory validator: %s", cfg.KVStore.Type)
	}
	return nil
}

// Create creates a new in-process KV store.
func (f *MemoryKVStoreFactory) Create(_ config.KVStoreConfig, _ *zap.Logger) (core.KVStore, error) {
	return NewMemoryKVStore(), nil
}

func init() {
	RegisterFactory(&MemoryKVStoreFactory{})
}
