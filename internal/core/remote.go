package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// CardStore holds card records.
type CardStore interface {
	// ListCards returns every card, newest first.
	ListCards(ctx context.Context) ([]Card, error)

	// CardByID returns one card or ErrNotFound.
	CardByID(ctx context.Context, id string) (*Card, error)

	// InsertCard creates a card with zeroed aggregates and shipping.
	InsertCard(ctx context.Context, fields CardFields) (*Card, error)

	// UpdateCard applies a partial write. It fails with ErrNoFields when
	// nothing is set and with ErrNotFound when no row matches.
	UpdateCard(ctx context.Context, id string, fields CardFields) (*Card, error)

	// DeleteCard removes the card and its products.
	DeleteCard(ctx context.Context, id string) error
}

// ProductStore holds product records scoped by card.
type ProductStore interface {
	// FetchProducts returns the card's products ordered by ordem ascending.
	FetchProducts(ctx context.Context, cardID string) ([]Product, error)

	// InsertProduct creates a product and returns the canonical record,
	// including the server-assigned id and sanitized table name.
	InsertProduct(ctx context.Context, cardID string, fields ProductFields) (*Product, error)

	// UpdateProduct applies a partial write to the (productID, cardID) row.
	UpdateProduct(ctx context.Context, cardID, productID string, fields ProductFields) (*Product, error)

	// DeleteProduct removes the (productID, cardID) row.
	DeleteProduct(ctx context.Context, cardID, productID string) error

	// SetProductOrder writes a single display position.
	SetProductOrder(ctx context.Context, cardID, productID string, position int) error
}

// ShippingStore holds the per-card shipping value.
type ShippingStore interface {
	FetchShipping(ctx context.Context, cardID string) (decimal.Decimal, error)

	// SaveShipping rejects negative values with ErrNegativeShipping and
	// returns the stored value.
	SaveShipping(ctx context.Context, cardID string, value decimal.Decimal) (decimal.Decimal, error)

	// ClearShipping resets the shipping value to zero.
	ClearShipping(ctx context.Context, cardID string) error
}

// RemoteStore is the record service behind every card table. Each call is a
// request/response round trip that can fail.
type RemoteStore interface {
	CardStore
	ProductStore
	ShippingStore

	// Close releases the underlying connection.
	Close() error
}
