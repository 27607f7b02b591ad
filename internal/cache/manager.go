// Package cache fronts remote reads of one card with a short-lived cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

// Slot names one cached value of a card.
type Slot string

const (
	SlotProducts Slot = "produtos"
	SlotCardInfo Slot = "cardInfo"
	SlotShipping Slot = "frete"
)

// Slots lists every slot a Manager owns.
var Slots = []Slot{SlotProducts, SlotCardInfo, SlotShipping}

// DefaultTTL is the freshness window of the cache.
const DefaultTTL = 60 * time.Second

// Manager caches the slots of one card in a KV store.
//
// All slots share one last-update timestamp: Set on any slot restarts the
// freshness window of every slot. Invalidate drops the timestamp and leaves
// the stored values in place; Get reports them absent until the next Set.
type Manager struct {
	kv     core.KVStore
	keys   *KeyBuilder
	cardID string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu         sync.RWMutex
	lastUpdate time.Time
	stamped    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL sets the freshness window. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithNamespace prefixes every key.
func WithNamespace(namespace string) Option {
	return func(m *Manager) { m.keys = NewKeyBuilder(namespace) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates the cache of card cardID on kv.
func NewManager(kv core.KVStore, cardID string, opts ...Option) *Manager {
	m := &Manager{
		kv:     kv,
		keys:   NewKeyBuilder(""),
		cardID: cardID,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("cache").With(zap.String("card_id", cardID))
	return m
}

// Set stores value under slot and stamps the shared timestamp.
func (m *Manager) Set(ctx context.Context, slot Slot, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", slot, err)
	}
	// Stored values carry no KV expiry; freshness is decided by the timestamp.
	if err := m.kv.Set(ctx, m.keys.BuildKey(m.cardID, slot), data, 0); err != nil {
		return fmt.Errorf("failed to store %s: %w", slot, err)
	}

	m.mu.Lock()
	m.lastUpdate = m.now()
	m.stamped = true
	m.mu.Unlock()
	return nil
}

// Get decodes the value of slot into dest. It reports false when the cache
// is not valid or the slot was never set. The timestamp is not touched.
func (m *Manager) Get(ctx context.Context, slot Slot, dest interface{}) (bool, error) {
	if !m.IsValid() {
		return false, nil
	}
	data, err := m.kv.Get(ctx, m.keys.BuildKey(m.cardID, slot))
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", slot, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", slot, err)
	}
	return true, nil
}

// IsValid reports whether a timestamp exists and is younger than the TTL.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stamped && m.now().Sub(m.lastUpdate) < m.ttl
}

// Invalidate drops the timestamp. Stored values stay in the KV store.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.stamped = false
	m.lastUpdate = time.Time{}
	m.mu.Unlock()
	m.logger.Debug("cache invalidated")
}

// Clear deletes every slot and the timestamp.
func (m *Manager) Clear(ctx context.Context) error {
	m.Invalidate()
	var errs []error
	for _, slot := range Slots {
		if err := m.kv.Delete(ctx, m.keys.BuildKey(m.cardID, slot)); err != nil && !errors.Is(err, core.ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", slot, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.logger.Debug("cache cleared")
	return nil
}

// TTL returns the freshness window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
