package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/shopspring/decimal"
)

// ErrTimeout is returned when a remote call outlives its deadline.
var ErrTimeout = errors.New("remote call timed out")

// WithTimeout wraps store so every call runs under its own deadline.
// A non-positive timeout returns store unchanged.
//
// A timed-out call returns ErrTimeout at once, but the underlying call keeps
// running until the wrapped store honours the cancelled context. A write
// that the store does not abort may still commit after the caller saw the
// timeout, and the caller's replica will not hold it until the next load
// from the store (storage.Manager.Refresh).
func WithTimeout(store core.RemoteStore, timeout time.Duration) core.RemoteStore {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{next: store, timeout: timeout}
}

type timeoutStore struct {
	next    core.RemoteStore
	timeout time.Duration
}

// call runs fn under the deadline and returns once fn returns or the
// deadline passes, whichever is first.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

func callErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (s *timeoutStore) ListCards(ctx context.Context) ([]core.Card, error) {
	return call(ctx, s.timeout, s.next.ListCards)
}

func (s *timeoutStore) CardByID(ctx context.Context, id string) (*core.Card, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (*core.Card, error) {
		return s.next.CardByID(ctx, id)
	})
}

func (s *timeoutStore) InsertCard(ctx context.Context, fields core.CardFields) (*core.Card, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (*core.Card, error) {
		return s.next.InsertCard(ctx, fields)
	})
}

func (s *timeoutStore) UpdateCard(ctx context.Context, id string, fields core.CardFields) (*core.Card, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (*core.Card, error) {
		return s.next.UpdateCard(ctx, id, fields)
	})
}

func (s *timeoutStore) DeleteCard(ctx context.Context, id string) error {
	return callErr(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.DeleteCard(ctx, id)
	})
}

func (s *timeoutStore) FetchProducts(ctx context.Context, cardID string) ([]core.Product, error) {
	return call(ctx, s.timeout, func(ctx context.Context) ([]core.Product, error) {
		return s.next.FetchProducts(ctx, cardID)
	})
}

func (s *timeoutStore) InsertProduct(ctx context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (*core.Product, error) {
		return s.next.InsertProduct(ctx, cardID, fields)
	})
}

func (s *timeoutStore) UpdateProduct(ctx context.Context, cardID, productID string, fields core.ProductFields) (*core.Product, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (*core.Product, error) {
		return s.next.UpdateProduct(ctx, cardID, productID, fields)
	})
}

func (s *timeoutStore) DeleteProduct(ctx context.Context, cardID, productID string) error {
	return callErr(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.DeleteProduct(ctx, cardID, productID)
	})
}

func (s *timeoutStore) SetProductOrder(ctx context.Context, cardID, productID string, position int) error {
	return callErr(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.SetProductOrder(ctx, cardID, productID, position)
	})
}

func (s *timeoutStore) FetchShipping(ctx context.Context, cardID string) (decimal.Decimal, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (decimal.Decimal, error) {
		return s.next.FetchShipping(ctx, cardID)
	})
}

func (s *timeoutStore) SaveShipping(ctx context.Context, cardID string, value decimal.Decimal) (decimal.Decimal, error) {
	return call(ctx, s.timeout, func(ctx context.Context) (decimal.Decimal, error) {
		return s.next.SaveShipping(ctx, cardID, value)
	})
}

func (s *timeoutStore) ClearShipping(ctx context.Context, cardID string) error {
	return callErr(ctx, s.timeout, func(ctx context.Context) error {
		return s.next.ClearShipping(ctx, cardID)
	})
}

func (s *timeoutStore) Close() error {
	return s.next.Close()
}
