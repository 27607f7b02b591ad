package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/kvstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *kvstore.MemoryKVStore, *fakeClock) {
	t.Helper()
	kv := kvstore.NewMemoryKVStore()
	clock := newFakeClock()
	return NewManager(kv, "card-1", WithNamespace("cardtable"), WithClock(clock.Now)), kv, clock
}

func TestKeyBuilder(t *testing.T) {
	assert.Equal(t, "cardtable:c1:produtos", NewKeyBuilder("cardtable").BuildKey("c1", SlotProducts))
	assert.Equal(t, "c1:frete", NewKeyBuilder("").BuildKey("c1", SlotShipping))
}

func TestManagerTTL(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	assert.False(t, m.IsValid())
	var products []core.Product
	ok, err := m.Get(ctx, SlotProducts, &products)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []core.Product{{ID: "p1", Name: "Panela", Price: decimal.RequireFromString("10.00")}}
	require.NoError(t, m.Set(ctx, SlotProducts, want))

	clock.Advance(59 * time.Second)
	ok, err = m.Get(ctx, SlotProducts, &products)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	assert.True(t, products[0].Price.Equal(want[0].Price))

	clock.Advance(time.Second)
	assert.False(t, m.IsValid())
	ok, err = m.Get(ctx, SlotProducts, &products)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerSharedTimestamp(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	require.NoError(t, m.Set(ctx, SlotProducts, []core.Product{{ID: "p1"}}))
	clock.Advance(50 * time.Second)
	require.NoError(t, m.Set(ctx, SlotShipping, decimal.NewFromInt(7)))

	// produtos was written 100s ago, but the frete write restarted the window.
	clock.Advance(50 * time.Second)
	var products []core.Product
	ok, err := m.Get(ctx, SlotProducts, &products)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", products[0].ID)

	var shipping decimal.Decimal
	ok, err = m.Get(ctx, SlotShipping, &shipping)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", shipping.String())

	var name string
	ok, err = m.Get(ctx, SlotCardInfo, &name)
	require.NoError(t, err)
	assert.False(t, ok, "slot never set")
}

func TestManagerInvalidateKeepsValues(t *testing.T) {
	ctx := context.Background()
	m, kv, _ := newTestManager(t)

	require.NoError(t, m.Set(ctx, SlotCardInfo, "Casa"))
	m.Invalidate()

	var name string
	ok, err := m.Get(ctx, SlotCardInfo, &name)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, kv.Len())

	require.NoError(t, m.Set(ctx, SlotShipping, 0))
	ok, err = m.Get(ctx, SlotCardInfo, &name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Casa", name)
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	m, kv, _ := newTestManager(t)

	require.NoError(t, m.Set(ctx, SlotCardInfo, "Casa"))
	require.NoError(t, m.Set(ctx, SlotProducts, []core.Product{}))
	require.NoError(t, m.Clear(ctx))

	assert.False(t, m.IsValid())
	assert.Equal(t, 0, kv.Len())

	require.NoError(t, m.Set(ctx, SlotShipping, 1))
	var name string
	ok, err := m.Get(ctx, SlotCardInfo, &name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerStoreErrors(t *testing.T) {
	ctx := context.Background()
	m, kv, _ := newTestManager(t)
	require.NoError(t, kv.Close())

	assert.ErrorIs(t, m.Set(ctx, SlotCardInfo, "Casa"), core.ErrClosed)
	assert.False(t, m.IsValid(), "failed write does not stamp")
}

func TestWithTTL(t *testing.T) {
	kv := kvstore.NewMemoryKVStore()
	assert.Equal(t, DefaultTTL, NewManager(kv, "c", WithTTL(0)).TTL())
	assert.Equal(t, time.Second, NewManager(kv, "c", WithTTL(time.Second)).TTL())
}
