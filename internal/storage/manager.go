// Package storage owns the in-memory replica of one card's products and
// shipping value and routes every read and write of that card.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/cache"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrPanic wraps a panic recovered from a collaborator.
var ErrPanic = errors.New("internal error")

// Manager is the single owner of one card's replica. Every mutation returns
// a core.Result and never panics past the method boundary.
type Manager struct {
	cardID string
	remote core.RemoteStore
	cache  *cache.Manager
	queue  core.WriteBackQueue
	logger *zap.Logger

	mu          sync.RWMutex
	products    []core.Product
	shipping    decimal.Decimal
	card        core.Card
	initialized bool
	orderGen    int64

	// initMu keeps a single Init running. writeMu serializes mutations and
	// loads, so a load never overwrites a mutation that finished meanwhile.
	initMu  sync.Mutex
	writeMu sync.Mutex
	reloads singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRetryQueue sets the queue that receives order writes that failed.
func WithRetryQueue(queue core.WriteBackQueue) Option {
	return func(m *Manager) { m.queue = queue }
}

// NewManager creates the manager of card cardID. The replica is empty until
// Init runs.
func NewManager(cardID string, remote core.RemoteStore, c *cache.Manager, opts ...Option) *Manager {
	m := &Manager{
		cardID:   cardID,
		remote:   remote,
		cache:    c,
		logger:   zap.NewNop(),
		shipping: decimal.Zero,
		products: []core.Product{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("storage").With(zap.String("card_id", cardID))
	return m
}

// CardID returns the card this manager owns.
func (m *Manager) CardID() string { return m.cardID }

// Cache returns the card's cache.
func (m *Manager) Cache() *cache.Manager { return m.cache }

// Initialized reports whether Init has completed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// CardName returns the card name, or "" when it could not be loaded.
func (m *Manager) CardName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.card.Name
}

// Card returns the loaded card record.
func (m *Manager) Card() core.Card {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.card
}

// Init loads the card, its products and its shipping value concurrently,
// each from the cache when valid and from the remote store otherwise.
// A failed load is logged and leaves its field at the zero value; Init
// always ends with the manager initialized. It is a no-op once done.
func (m *Manager) Init(ctx context.Context) {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.Initialized() {
		return
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.load(ctx, true)
}

// Refresh reloads the replica from the remote store, skipping the cache,
// and rewrites the cache slots. Concurrent calls share one load.
func (m *Manager) Refresh(ctx context.Context) {
	_, _, _ = m.reloads.Do("refresh", func() (interface{}, error) {
		m.initMu.Lock()
		defer m.initMu.Unlock()
		m.writeMu.Lock()
		defer m.writeMu.Unlock()
		m.load(ctx, false)
		return nil, nil
	})
}

// load must be called with writeMu held.
func (m *Manager) load(ctx context.Context, useCache bool) {
	m.logger.Debug("load start", zap.Bool("use_cache", useCache))

	var (
		card                     core.Card
		products                 []core.Product
		shipping                 decimal.Decimal
		cardErr, prodErr, shipErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		card, cardErr = m.loadCard(gctx, useCache)
		return nil
	})
	g.Go(func() error {
		products, prodErr = m.loadProducts(gctx, useCache)
		return nil
	})
	g.Go(func() error {
		shipping, shipErr = m.loadShipping(gctx, useCache)
		return nil
	})
	_ = g.Wait()

	if cardErr != nil {
		m.logger.Warn("card load failed", zap.Error(cardErr))
		card = core.Card{}
	}
	if prodErr != nil {
		m.logger.Warn("products load failed", zap.Error(prodErr))
		products = []core.Product{}
	}
	if shipErr != nil {
		m.logger.Warn("shipping load failed", zap.Error(shipErr))
		shipping = decimal.Zero
	}
	sortByOrder(products)

	m.mu.Lock()
	m.card = card
	m.products = products
	m.shipping = shipping
	m.initialized = true
	m.mu.Unlock()

	m.logger.Info("load complete",
		zap.Int("products", len(products)),
		zap.String("shipping", shipping.StringFixed(2)),
		zap.Bool("partial", cardErr != nil || prodErr != nil || shipErr != nil))
}

// cached reads slot into dest. A cache read error counts as a miss.
func (m *Manager) cached(ctx context.Context, slot cache.Slot, dest interface{}) bool {
	if m.cache == nil {
		return false
	}
	ok, err := m.cache.Get(ctx, slot, dest)
	if err != nil {
		m.logger.Warn("cache read failed", zap.String("slot", string(slot)), zap.Error(err))
		return false
	}
	return ok
}

func (m *Manager) store(ctx context.Context, slot cache.Slot, value interface{}) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, slot, value); err != nil {
		m.logger.Warn("cache write failed", zap.String("slot", string(slot)), zap.Error(err))
	}
}

func (m *Manager) invalidate() {
	if m.cache != nil {
		m.cache.Invalidate()
	}
}

// syncCache rewrites the products and card slots from the replica, then
// drops the cache timestamp. A later Set on another slot restamps the
// cache, so the slots it revives must already match the replica.
// Must be called with writeMu held.
func (m *Manager) syncCache(ctx context.Context) {
	if m.cache == nil {
		return
	}
	m.mu.Lock()
	stats := core.ComputeStats(m.products)
	m.card.ProductCount = stats.ProductCount
	m.card.TotalValue = stats.TotalValue
	products := make([]core.Product, len(m.products))
	copy(products, m.products)
	card := m.card
	initialized := m.initialized
	m.mu.Unlock()

	if initialized {
		sortByOrder(products)
		m.store(ctx, cache.SlotProducts, products)
		if card.ID != "" {
			m.store(ctx, cache.SlotCardInfo, card)
		}
	}
	m.invalidate()
}

func (m *Manager) loadCard(ctx context.Context, useCache bool) (core.Card, error) {
	var card core.Card
	if useCache && m.cached(ctx, cache.SlotCardInfo, &card) {
		return card, nil
	}
	c, err := m.remote.CardByID(ctx, m.cardID)
	if err != nil {
		return core.Card{}, err
	}
	m.store(ctx, cache.SlotCardInfo, c)
	return *c, nil
}

func (m *Manager) loadProducts(ctx context.Context, useCache bool) ([]core.Product, error) {
	var products []core.Product
	if useCache && m.cached(ctx, cache.SlotProducts, &products) {
		return products, nil
	}
	products, err := m.remote.FetchProducts(ctx, m.cardID)
	if err != nil {
		return nil, err
	}
	m.store(ctx, cache.SlotProducts, products)
	return products, nil
}

func (m *Manager) loadShipping(ctx context.Context, useCache bool) (decimal.Decimal, error) {
	var shipping decimal.Decimal
	if useCache && m.cached(ctx, cache.SlotShipping, &shipping) {
		return shipping, nil
	}
	shipping, err := m.remote.FetchShipping(ctx, m.cardID)
	if err != nil {
		return decimal.Zero, err
	}
	m.store(ctx, cache.SlotShipping, shipping)
	return shipping, nil
}

// LoadProducts returns a copy of the replica sorted by ordem, running Init
// first when the manager is not initialized.
func (m *Manager) LoadProducts(ctx context.Context) (res core.Result[[]core.Product]) {
	defer recoverInto(m.logger, "load products", &res)

	if !m.Initialized() {
		m.Init(ctx)
	}
	return core.Success(m.Products())
}

// Products returns a copy of the replica sorted by ordem.
func (m *Manager) Products() []core.Product {
	m.mu.RLock()
	products := make([]core.Product, len(m.products))
	copy(products, m.products)
	m.mu.RUnlock()
	sortByOrder(products)
	return products
}

// AddProduct inserts a product and appends the stored record to the replica.
// Validation is the caller's job.
func (m *Manager) AddProduct(ctx context.Context, fields core.ProductFields) (res core.Result[core.Product]) {
	defer recoverInto(m.logger, "add product", &res)
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	p, err := m.remote.InsertProduct(ctx, m.cardID, fields)
	if err != nil {
		m.logger.Error("add product failed", zap.Error(err))
		return core.Failure[core.Product](err)
	}

	m.mu.Lock()
	m.products = append(m.products, *p)
	m.mu.Unlock()
	m.syncCache(ctx)

	m.logger.Debug("product added", zap.String("product_id", p.ID))
	return core.Success(*p)
}

// UpdateProduct writes a partial update and replaces the replica entry with
// the stored record. A missing replica entry is logged and left alone.
func (m *Manager) UpdateProduct(ctx context.Context, productID string, fields core.ProductFields) (res core.Result[core.Product]) {
	defer recoverInto(m.logger, "update product", &res)
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	p, err := m.remote.UpdateProduct(ctx, m.cardID, productID, fields)
	if err != nil {
		m.logger.Error("update product failed", zap.String("product_id", productID), zap.Error(err))
		return core.Failure[core.Product](err)
	}

	m.mu.Lock()
	idx := m.indexOf(productID)
	if idx >= 0 {
		m.products[idx] = *p
	}
	m.mu.Unlock()
	if idx < 0 {
		m.logger.Warn("updated product missing from replica", zap.String("product_id", productID))
	}
	m.syncCache(ctx)

	return core.Success(*p)
}

// RemoveProduct deletes a product and drops it from the replica.
func (m *Manager) RemoveProduct(ctx context.Context, productID string) (res core.Result[string]) {
	defer recoverInto(m.logger, "remove product", &res)
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.remote.DeleteProduct(ctx, m.cardID, productID); err != nil {
		m.logger.Error("remove product failed", zap.String("product_id", productID), zap.Error(err))
		return core.Failure[string](err)
	}

	m.mu.Lock()
	if idx := m.indexOf(productID); idx >= 0 {
		m.products = append(m.products[:idx], m.products[idx+1:]...)
	}
	m.mu.Unlock()
	m.syncCache(ctx)

	return core.Success(productID)
}

// SaveShipping stores a non-negative shipping value and updates the replica
// and the shipping slot of the cache.
func (m *Manager) SaveShipping(ctx context.Context, value decimal.Decimal) (res core.Result[decimal.Decimal]) {
	defer recoverInto(m.logger, "save shipping", &res)
	if err := write.ValidateShipping(value); err != nil {
		return core.Failure[decimal.Decimal](err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	saved, err := m.remote.SaveShipping(ctx, m.cardID, value)
	if err != nil {
		m.logger.Error("save shipping failed", zap.Error(err))
		return core.Failure[decimal.Decimal](err)
	}

	m.mu.Lock()
	m.shipping = saved
	m.card.Shipping = saved
	card := m.card
	m.mu.Unlock()
	m.store(ctx, cache.SlotShipping, saved)
	if card.ID != "" {
		m.store(ctx, cache.SlotCardInfo, card)
	}

	return core.Success(saved)
}

// ClearShipping resets the shipping value to zero.
func (m *Manager) ClearShipping(ctx context.Context) core.Result[decimal.Decimal] {
	return m.SaveShipping(ctx, decimal.Zero)
}

// Shipping returns the in-memory shipping value.
func (m *Manager) Shipping() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shipping
}

// ProductByID returns the replica entry with the given id.
func (m *Manager) ProductByID(productID string) (core.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx := m.indexOf(productID); idx >= 0 {
		return m.products[idx], true
	}
	return core.Product{}, false
}

// Stats computes count, total and distinct categories over the replica.
func (m *Manager) Stats() core.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return core.ComputeStats(m.products)
}

// indexOf must be called with mu held.
func (m *Manager) indexOf(productID string) int {
	for i := range m.products {
		if m.products[i].ID == productID {
			return i
		}
	}
	return -1
}

func sortByOrder(products []core.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Order < products[j].Order
	})
}

func recoverInto[T any](logger *zap.Logger, op string, res *core.Result[T]) {
	if r := recover(); r != nil {
		logger.Error("recovered panic", zap.String("op", op), zap.Any("panic", r))
		*res = core.Failure[T](fmt.Errorf("%s: %w: %v", op, ErrPanic, r))
	}
}
