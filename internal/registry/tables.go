// Package registry keeps at most one storage.Manager per card.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrTableNotRegistered is returned for card ids with no table.
	ErrTableNotRegistered = errors.New("table is not registered")

	// ErrEmptyCardID is returned when a card id is blank.
	ErrEmptyCardID = errors.New("card id cannot be empty")
)

// Factory builds the storage manager of a card.
type Factory func(cardID string) *storage.Manager

// TableMetadata describes a registered table.
type TableMetadata struct {
	// CardID is the card the table belongs to.
	CardID string

	// Table is the card's storage manager.
	Table *storage.Manager

	// CreatedAt is when the table was registered.
	CreatedAt time.Time
}

// TablesManager maps card ids to storage managers. A table is created on
// first access and its Init runs in the background; GetTable does not wait
// for it. Two callers asking for the same card share one manager.
type TablesManager struct {
	mu        sync.RWMutex
	tables    map[string]*TableMetadata
	factory   Factory
	lifecycle *LifecycleManager
	logger    *zap.Logger
	inits     sync.WaitGroup
}

// NewTablesManager creates an empty registry.
func NewTablesManager(factory Factory, lifecycle *LifecycleManager, logger *zap.Logger) *TablesManager {
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TablesManager{
		tables:    make(map[string]*TableMetadata),
		factory:   factory,
		lifecycle: lifecycle,
		logger:    logger.Named("registry"),
	}
}

// GetTable returns the table of cardID, creating it when absent. A new
// table starts initializing in the background with a context detached
// from ctx's cancellation.
func (tm *TablesManager) GetTable(ctx context.Context, cardID string) (*storage.Manager, error) {
	if cardID == "" {
		return nil, ErrEmptyCardID
	}

	tm.mu.RLock()
	if metadata, ok := tm.tables[cardID]; ok {
		tm.mu.RUnlock()
		return metadata.Table, nil
	}
	tm.mu.RUnlock()

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if metadata, ok := tm.tables[cardID]; ok {
		return metadata.Table, nil
	}

	table := tm.factory(cardID)
	if err := tm.lifecycle.ExecuteCreateHooks(ctx, cardID, table); err != nil {
		return nil, fmt.Errorf("create hook failed for card %q: %w", cardID, err)
	}
	tm.tables[cardID] = &TableMetadata{CardID: cardID, Table: table, CreatedAt: time.Now()}
	tm.logger.Debug("table created", zap.String("card_id", cardID))

	initCtx := context.WithoutCancel(ctx)
	tm.inits.Add(1)
	go func() {
		defer tm.inits.Done()
		table.Init(initCtx)
	}()
	return table, nil
}

// DeleteTable drops the table of cardID after running the delete hooks.
func (tm *TablesManager) DeleteTable(ctx context.Context, cardID string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	metadata, ok := tm.tables[cardID]
	if !ok {
		return fmt.Errorf("card %q: %w", cardID, ErrTableNotRegistered)
	}
	if err := tm.lifecycle.ExecuteDeleteHooks(ctx, cardID, metadata.Table); err != nil {
		return fmt.Errorf("delete hook failed for card %q: %w", cardID, err)
	}
	delete(tm.tables, cardID)
	tm.logger.Debug("table deleted", zap.String("card_id", cardID))
	return nil
}

// Lookup returns the table of cardID without creating one.
func (tm *TablesManager) Lookup(cardID string) (*storage.Manager, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	metadata, ok := tm.tables[cardID]
	if !ok {
		return nil, false
	}
	return metadata.Table, true
}

// HasTable reports whether cardID has a table.
func (tm *TablesManager) HasTable(cardID string) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, ok := tm.tables[cardID]
	return ok
}

// ListTables returns the registered card ids, sorted.
func (tm *TablesManager) ListTables() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	ids := make([]string, 0, len(tm.tables))
	for id := range tm.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetMetadata returns a copy of the metadata of cardID.
func (tm *TablesManager) GetMetadata(cardID string) (*TableMetadata, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	metadata, ok := tm.tables[cardID]
	if !ok {
		return nil, fmt.Errorf("card %q: %w", cardID, ErrTableNotRegistered)
	}
	out := *metadata
	return &out, nil
}

// Count returns the number of registered tables.
func (tm *TablesManager) Count() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tables)
}

// Lifecycle returns the lifecycle manager of this registry.
func (tm *TablesManager) Lifecycle() *LifecycleManager {
	return tm.lifecycle
}

// Wait blocks until every background Init has returned.
func (tm *TablesManager) Wait() {
	tm.inits.Wait()
}

// Clear deletes every table, running delete hooks for each.
func (tm *TablesManager) Clear(ctx context.Context) error {
	var errs []error
	for _, id := range tm.ListTables() {
		if err := tm.DeleteTable(ctx, id); err != nil && !errors.Is(err, ErrTableNotRegistered) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
