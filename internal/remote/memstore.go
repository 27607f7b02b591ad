package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/schema"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process core.RemoteStore. It keeps the same
// record semantics as SQLStore and serves local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	cards    map[string]*core.Card
	products map[string]*memProduct
	seq      int64
	now      func() time.Time
	closed   bool
}

type memProduct struct {
	product core.Product
	seq     int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:    make(map[string]*core.Card),
		products: make(map[string]*memProduct),
		now:      time.Now,
	}
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return core.ErrClosed
	}
	return nil
}

// ListCards returns every card, newest first.
func (s *MemoryStore) ListCards(ctx context.Context) ([]core.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	cards := make([]core.Card, 0, len(s.cards))
	for _, c := range s.cards {
		cards = append(cards, *c)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards, nil
}

// CardByID returns one card.
func (s *MemoryStore) CardByID(ctx context.Context, id string) (*core.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	out := *c
	return &out, nil
}

// InsertCard creates a card with zeroed aggregates and shipping.
func (s *MemoryStore) InsertCard(ctx context.Context, fields core.CardFields) (*core.Card, error) {
	if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" {
		return nil, write.ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.seq++
	card := &core.Card{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(*fields.Name),
		TotalValue: decimal.Zero,
		Shipping:   decimal.Zero,
		// seq keeps creation order strict when the clock does not advance
		CreatedAt: s.now().UTC().Add(time.Duration(s.seq)),
	}
	if fields.Description != nil {
		card.Description = strings.TrimSpace(*fields.Description)
	}
	if fields.ImageURL != nil {
		card.ImageURL = strings.TrimSpace(*fields.ImageURL)
	}
	s.cards[card.ID] = card
	out := *card
	return &out, nil
}

// UpdateCard applies a partial card write.
func (s *MemoryStore) UpdateCard(ctx context.Context, id string, fields core.CardFields) (*core.Card, error) {
	if fields.Empty() {
		return nil, core.ErrNoFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	card, ok := s.cards[id]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	if fields.Name != nil {
		card.Name = strings.TrimSpace(*fields.Name)
	}
	if fields.Description != nil {
		card.Description = strings.TrimSpace(*fields.Description)
	}
	if fields.ImageURL != nil {
		card.ImageURL = strings.TrimSpace(*fields.ImageURL)
	}
	out := *card
	return &out, nil
}

// DeleteCard removes the card and its products.
func (s *MemoryStore) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.cards[id]; !ok {
		return fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	delete(s.cards, id)
	for pid, p := range s.products {
		if p.product.CardID == id {
			delete(s.products, pid)
		}
	}
	return nil
}

func (s *MemoryStore) cardProducts(cardID string) []*memProduct {
	var out []*memProduct
	for _, p := range s.products {
		if p.product.CardID == cardID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].product.Order != out[j].product.Order {
			return out[i].product.Order < out[j].product.Order
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// FetchProducts returns the card's products ordered by ordem ascending.
func (s *MemoryStore) FetchProducts(ctx context.Context, cardID string) ([]core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stored := s.cardProducts(cardID)
	products := make([]core.Product, 0, len(stored))
	for _, p := range stored {
		products = append(products, p.product)
	}
	return products, nil
}

// InsertProduct creates a product on an existing card.
func (s *MemoryStore) InsertProduct(ctx context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	card, ok := s.cards[cardID]
	if !ok {
		return nil, fmt.Errorf("card %s: %w", cardID, core.ErrNotFound)
	}

	s.seq++
	p := core.Product{
		ID:        uuid.NewString(),
		CardID:    cardID,
		CardName:  card.Name,
		Price:     decimal.Zero,
		TableName: schema.SanitizeTableName(card.Name),
	}
	fields.Apply(&p)
	s.products[p.ID] = &memProduct{product: p, seq: s.seq}
	s.refreshSummary(cardID)
	return &p, nil
}

// UpdateProduct applies a partial write to the (productID, cardID) row.
func (s *MemoryStore) UpdateProduct(ctx context.Context, cardID, productID string, fields core.ProductFields) (*core.Product, error) {
	if fields == (core.ProductFields{}) {
		return nil, core.ErrNoFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stored, ok := s.products[productID]
	if !ok || stored.product.CardID != cardID {
		return nil, fmt.Errorf("product %s: %w", productID, core.ErrNotFound)
	}
	fields.Apply(&stored.product)
	s.refreshSummary(cardID)
	out := stored.product
	return &out, nil
}

// DeleteProduct removes the (productID, cardID) row.
func (s *MemoryStore) DeleteProduct(ctx context.Context, cardID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	stored, ok := s.products[productID]
	if !ok || stored.product.CardID != cardID {
		return fmt.Errorf("product %s: %w", productID, core.ErrNotFound)
	}
	delete(s.products, productID)
	s.refreshSummary(cardID)
	return nil
}

// SetProductOrder writes one display position. Unknown rows are ignored.
func (s *MemoryStore) SetProductOrder(ctx context.Context, cardID, productID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if stored, ok := s.products[productID]; ok && stored.product.CardID == cardID {
		stored.product.Order = position
	}
	return nil
}

// FetchShipping returns the card's shipping value.
func (s *MemoryStore) FetchShipping(ctx context.Context, cardID string) (decimal.Decimal, error) {
	card, err := s.CardByID(ctx, cardID)
	if err != nil {
		return decimal.Zero, err
	}
	return card.Shipping, nil
}

// SaveShipping stores a non-negative shipping value.
func (s *MemoryStore) SaveShipping(ctx context.Context, cardID string, value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, core.ErrNegativeShipping
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return decimal.Zero, err
	}
	card, ok := s.cards[cardID]
	if !ok {
		return decimal.Zero, fmt.Errorf("card %s: %w", cardID, core.ErrNotFound)
	}
	card.Shipping = value
	return value, nil
}

// ClearShipping resets the shipping value to zero.
func (s *MemoryStore) ClearShipping(ctx context.Context, cardID string) error {
	_, err := s.SaveShipping(ctx, cardID, decimal.Zero)
	return err
}

// refreshSummary must be called with mu held.
func (s *MemoryStore) refreshSummary(cardID string) {
	card, ok := s.cards[cardID]
	if !ok {
		return
	}
	products := s.cardProducts(cardID)
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.product.Price)
	}
	card.ProductCount = len(products)
	card.TotalValue = total
}

// Close marks the store closed. Later calls fail with core.ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
