// Package remote implements the record store behind card tables: a SQL
// store over core.Database, an in-process store, and a decorator that puts
// a deadline on every call.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/schema"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SQLStore implements core.RemoteStore on the cards and tabelas_card tables.
type SQLStore struct {
	db     core.Database
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewSQLStore creates a store on an open database.
func NewSQLStore(db core.Database, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger.Named("remote.sql"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

var (
	cardSelect    = "SELECT " + schema.SelectList(schema.CardColumns) + " FROM " + schema.CardsTable
	productSelect = "SELECT " + schema.SelectList(schema.ProductColumns) + " FROM " + schema.ProductsTable
)

func (s *SQLStore) queryCards(ctx context.Context, query string, args ...interface{}) ([]core.Card, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []core.Card{}
	for rows.Next() {
		card, err := schema.ScanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *SQLStore) queryProducts(ctx context.Context, query string, args ...interface{}) ([]core.Product, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []core.Product{}
	for rows.Next() {
		p, err := schema.ScanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListCards returns every card, newest first.
func (s *SQLStore) ListCards(ctx context.Context) ([]core.Card, error) {
	cards, err := s.queryCards(ctx, cardSelect+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// CardByID returns one card.
func (s *SQLStore) CardByID(ctx context.Context, id string) (*core.Card, error) {
	cards, err := s.queryCards(ctx, cardSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	return &cards[0], nil
}

// InsertCard creates a card with zeroed aggregates and shipping.
func (s *SQLStore) InsertCard(ctx context.Context, fields core.CardFields) (*core.Card, error) {
	if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" {
		return nil, write.ErrEmptyName
	}
	var description, imageURL string
	if fields.Description != nil {
		description = strings.TrimSpace(*fields.Description)
	}
	if fields.ImageURL != nil {
		imageURL = strings.TrimSpace(*fields.ImageURL)
	}

	id := s.newID()
	_, err := s.db.Exec(ctx,
		"INSERT INTO "+schema.CardsTable+" (id, name, description, image_url, quantidade_produtos, valor_total, frete, table_name, created_at) VALUES (?, ?, ?, ?, 0, 0, 0, NULL, ?)",
		id, strings.TrimSpace(*fields.Name), schema.Nullable(description), schema.Nullable(imageURL), s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	s.logger.Info("card created", zap.String("card_id", id))
	return s.CardByID(ctx, id)
}

// UpdateCard applies a partial card write.
func (s *SQLStore) UpdateCard(ctx context.Context, id string, fields core.CardFields) (*core.Card, error) {
	sets, args := schema.CardAssignments(fields)
	if len(sets) == 0 {
		return nil, core.ErrNoFields
	}
	args = append(args, id)
	if _, err := s.db.Exec(ctx, "UPDATE "+schema.CardsTable+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	return s.CardByID(ctx, id)
}

// DeleteCard removes the card and its products in one transaction.
func (s *SQLStore) DeleteCard(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+schema.ProductsTable+" WHERE id_card = ?", id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete products of card %s: %w", id, err)
	}
	res, err := tx.Exec(ctx, "DELETE FROM "+schema.CardsTable+" WHERE id = ?", id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit card delete: %w", err)
	}
	s.logger.Info("card deleted", zap.String("card_id", id))
	return nil
}

// FetchProducts returns the card's products ordered by ordem ascending.
func (s *SQLStore) FetchProducts(ctx context.Context, cardID string) ([]core.Product, error) {
	products, err := s.queryProducts(ctx, productSelect+" WHERE id_card = ? ORDER BY ordem ASC", cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products of card %s: %w", cardID, err)
	}
	return products, nil
}

func (s *SQLStore) productByID(ctx context.Context, cardID, productID string) (*core.Product, error) {
	products, err := s.queryProducts(ctx, productSelect+" WHERE id = ? AND id_card = ?", productID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", productID, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, core.ErrNotFound)
	}
	return &products[0], nil
}

// InsertProduct creates a product. The card name is denormalized onto the
// row together with its sanitized table name.
func (s *SQLStore) InsertProduct(ctx context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	card, err := s.CardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	p := core.Product{
		ID:        s.newID(),
		CardID:    cardID,
		CardName:  card.Name,
		Price:     decimal.Zero,
		TableName: schema.SanitizeTableName(card.Name),
	}
	fields.Apply(&p)

	_, err = s.db.Exec(ctx,
		"INSERT INTO "+schema.ProductsTable+" ("+schema.SelectList(schema.ProductColumns)+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.CardID, p.CardName, p.Name, p.Price.StringFixed(2),
		schema.Nullable(p.Image), schema.Nullable(p.Link), schema.Nullable(p.Category), schema.Nullable(p.Description),
		schema.ImportanceValue(p.Importance), p.Order, p.TableName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	s.refreshSummary(ctx, cardID)
	return s.productByID(ctx, cardID, p.ID)
}

// UpdateProduct applies a partial write to the (productID, cardID) row.
func (s *SQLStore) UpdateProduct(ctx context.Context, cardID, productID string, fields core.ProductFields) (*core.Product, error) {
	sets, args := schema.ProductAssignments(fields)
	if len(sets) == 0 {
		return nil, core.ErrNoFields
	}
	args = append(args, productID, cardID)
	query := "UPDATE " + schema.ProductsTable + " SET " + strings.Join(sets, ", ") + " WHERE id = ? AND id_card = ?"
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update product %s: %w", productID, err)
	}
	p, err := s.productByID(ctx, cardID, productID)
	if err != nil {
		return nil, err
	}
	s.refreshSummary(ctx, cardID)
	return p, nil
}

// DeleteProduct removes the (productID, cardID) row.
func (s *SQLStore) DeleteProduct(ctx context.Context, cardID, productID string) error {
	res, err := s.db.Exec(ctx, "DELETE FROM "+schema.ProductsTable+" WHERE id = ? AND id_card = ?", productID, cardID)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", productID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("product %s: %w", productID, core.ErrNotFound)
	}
	s.refreshSummary(ctx, cardID)
	return nil
}

// SetProductOrder writes one display position.
func (s *SQLStore) SetProductOrder(ctx context.Context, cardID, productID string, position int) error {
	_, err := s.db.Exec(ctx, "UPDATE "+schema.ProductsTable+" SET ordem = ? WHERE id = ? AND id_card = ?", position, productID, cardID)
	if err != nil {
		return fmt.Errorf("failed to set order of product %s: %w", productID, err)
	}
	return nil
}

// FetchShipping returns the card's shipping value.
func (s *SQLStore) FetchShipping(ctx context.Context, cardID string) (decimal.Decimal, error) {
	rows, err := s.db.Query(ctx, "SELECT frete FROM "+schema.CardsTable+" WHERE id = ?", cardID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch shipping of card %s: %w", cardID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("card %s: %w", cardID, core.ErrNotFound)
	}
	var shipping decimal.NullDecimal
	if err := rows.Scan(&shipping); err != nil {
		return decimal.Zero, fmt.Errorf("failed to scan shipping: %w", err)
	}
	return shipping.Decimal, nil
}

// SaveShipping stores a non-negative shipping value.
func (s *SQLStore) SaveShipping(ctx context.Context, cardID string, value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, core.ErrNegativeShipping
	}
	if _, err := s.db.Exec(ctx, "UPDATE "+schema.CardsTable+" SET frete = ? WHERE id = ?", value.StringFixed(2), cardID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to save shipping of card %s: %w", cardID, err)
	}
	return s.FetchShipping(ctx, cardID)
}

// ClearShipping resets the shipping value to zero.
func (s *SQLStore) ClearShipping(ctx context.Context, cardID string) error {
	_, err := s.SaveShipping(ctx, cardID, decimal.Zero)
	return err
}

// refreshSummary recomputes quantidade_produtos and valor_total. Failures
// are logged; the product write that triggered it already succeeded.
func (s *SQLStore) refreshSummary(ctx context.Context, cardID string) {
	if err := s.updateSummary(ctx, cardID); err != nil {
		s.logger.Warn("card summary refresh failed", zap.String("card_id", cardID), zap.Error(err))
	}
}

func (s *SQLStore) updateSummary(ctx context.Context, cardID string) error {
	rows, err := s.db.Query(ctx, "SELECT preco FROM "+schema.ProductsTable+" WHERE id_card = ?", cardID)
	if err != nil {
		return err
	}
	count, total := 0, decimal.Zero
	for rows.Next() {
		var price decimal.NullDecimal
		if err := rows.Scan(&price); err != nil {
			rows.Close()
			return err
		}
		count++
		total = total.Add(price.Decimal)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, "UPDATE "+schema.CardsTable+" SET quantidade_produtos = ?, valor_total = ? WHERE id = ?",
		count, total.StringFixed(2), cardID)
	if err != nil {
		return err
	}
	s.logger.Debug("card summary refreshed", zap.String("card_id", cardID), zap.Int("count", count), zap.String("total", total.StringFixed(2)))
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
