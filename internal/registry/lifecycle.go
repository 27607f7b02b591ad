package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/storage"
)

// LifecycleHook defines a hook that runs when a card table is created or
// deleted. Hooks are called synchronously.
type LifecycleHook interface {
	// OnCreate is called before a new table is registered.
	// If this hook returns an error, the table is not registered.
	OnCreate(ctx context.Context, cardID string, table *storage.Manager) error

	// OnDelete is called before a table is dropped from the registry.
	// If this hook returns an error, the table stays registered.
	OnDelete(ctx context.Context, cardID string, table *storage.Manager) error
}

// LifecycleHookFunc lets plain functions act as a LifecycleHook.
type LifecycleHookFunc struct {
	OnCreateFunc func(ctx context.Context, cardID string, table *storage.Manager) error
	OnDeleteFunc func(ctx context.Context, cardID string, table *storage.Manager) error
}

// OnCreate calls OnCreateFunc if it's not nil.
func (f LifecycleHookFunc) OnCreate(ctx context.Context, cardID string, table *storage.Manager) error {
	if f.OnCreateFunc != nil {
		return f.OnCreateFunc(ctx, cardID, table)
	}
	return nil
}

// OnDelete calls OnDeleteFunc if it's not nil.
func (f LifecycleHookFunc) OnDelete(ctx context.Context, cardID string, table *storage.Manager) error {
	if f.OnDeleteFunc != nil {
		return f.OnDeleteFunc(ctx, cardID, table)
	}
	return nil
}

// LifecycleManager keeps the hooks run by TablesManager.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

// NewLifecycleManager creates a new lifecycle manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		hooks: make([]LifecycleHook, 0),
	}
}

// RegisterHook adds a hook. Hooks run in registration order.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

func (lm *LifecycleManager) snapshot() []LifecycleHook {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	return hooks
}

// ExecuteCreateHooks runs every create hook and stops at the first error.
func (lm *LifecycleManager) ExecuteCreateHooks(ctx context.Context, cardID string, table *storage.Manager) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnCreate(ctx, cardID, table); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteDeleteHooks runs every delete hook and stops at the first error.
func (lm *LifecycleManager) ExecuteDeleteHooks(ctx context.Context, cardID string, table *storage.Manager) error {
	for _, hook := range lm.snapshot() {
		if err := hook.OnDelete(ctx, cardID, table); err != nil {
			return err
		}
	}
	return nil
}

// ClearHooks removes all registered hooks.
func (lm *LifecycleManager) ClearHooks() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = make([]LifecycleHook, 0)
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
