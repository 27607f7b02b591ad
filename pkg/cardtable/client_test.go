package cardtable

import (
	"context"
	"testing"

	"github.com/rzpsarthak13/cardtable/internal/cache"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, client.Close()) })
	return client
}

func TestClientEndToEnd(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	require.NoError(t, client.Start(ctx))

	card, err := client.Cards().Create(ctx, core.CardFields{Name: core.Ptr("Apartamento")})
	require.NoError(t, err)

	app, err := client.App(ctx, card.ID)
	require.NoError(t, err)
	again, err := client.App(ctx, card.ID)
	require.NoError(t, err)
	assert.Same(t, app, again)
	assert.Equal(t, "Apartamento", app.Title())

	for _, form := range []write.ProductForm{
		{Name: "Mesa", Price: "250", Category: "Sala"},
		{Name: "Cadeira", Price: "80,50", Category: "Sala"},
		{Name: "Fogão", Price: "900", Category: "Cozinha"},
	} {
		res := app.SaveProduct(ctx, form, nil)
		require.True(t, res.OK(), res.Message())
	}
	require.True(t, app.SaveShipping(ctx, "30").OK())

	view := app.View()
	assert.Equal(t, "R$ 1.230,50", view.Formatted.Subtotal)
	assert.Equal(t, "R$ 1.260,50", view.Formatted.Total)

	stored, err := client.Remote().CardByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ProductCount)
	assert.True(t, stored.TotalValue.Equal(decimal.RequireFromString("1230.50")))
}

func TestClientDeleteCardReleasesTable(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	card, err := client.Cards().Create(ctx, core.CardFields{Name: core.Ptr("Escritório")})
	require.NoError(t, err)
	app, err := client.App(ctx, card.ID)
	require.NoError(t, err)
	require.True(t, app.SaveProduct(ctx, write.ProductForm{Name: "Monitor", Price: "1200"}, nil).OK())

	key := cache.NewKeyBuilder(client.cfg.Cache.Namespace).BuildKey(card.ID, cache.SlotProducts)
	exists, err := client.kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Cards().Delete(ctx, card.ID))
	assert.False(t, client.Tables().HasTable(card.ID))
	exists, err = client.kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = client.App(ctx, card.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.False(t, client.Tables().HasTable(card.ID))
}

func TestClientAppUnknownCard(t *testing.T) {
	client := newTestClient(t)

	_, err := client.App(context.Background(), "no-such-card")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, client.Tables().Count())
}

func TestClientSkipsSupersededOrderWrites(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	card, err := client.Cards().Create(ctx, core.CardFields{Name: core.Ptr("Quarto")})
	require.NoError(t, err)
	app, err := client.App(ctx, card.ID)
	require.NoError(t, err)
	for _, name := range []string{"Cama", "Abajur"} {
		require.True(t, app.SaveProduct(ctx, write.ProductForm{Name: name, Price: "100"}, nil).OK())
	}

	queued := &core.OrderWrite{CardID: card.ID, ProductID: app.Products()[0].ID, Position: 1}
	assert.False(t, client.superseded(queued))

	products := app.Products()
	require.True(t, app.MoveProduct(ctx, products[1].ID, products[0].ID).OK())
	assert.True(t, client.superseded(queued))

	other := &core.OrderWrite{CardID: "not-loaded", ProductID: "p", Position: 0}
	assert.False(t, client.superseded(other))
}

func TestClientClosed(t *testing.T) {
	client, err := NewClient(DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.App(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, client.Start(context.Background()), ErrClientClosed)
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Remote.Type = "ftp"
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", false)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
