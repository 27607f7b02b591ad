package table

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/cache"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/kvstore"
	"github.com/rzpsarthak13/cardtable/internal/remote"
	"github.com/rzpsarthak13/cardtable/internal/storage"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedStore blocks InsertProduct until the gate is closed.
type gatedStore struct {
	*remote.MemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) InsertProduct(ctx context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	s.entered <- struct{}{}
	<-s.gate
	return s.MemoryStore.InsertProduct(ctx, cardID, fields)
}

// countingStore counts product writes that reach the store.
type countingStore struct {
	*remote.MemoryStore
	inserts atomic.Int32
	updates atomic.Int32
}

func (s *countingStore) InsertProduct(ctx context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	s.inserts.Add(1)
	return s.MemoryStore.InsertProduct(ctx, cardID, fields)
}

func (s *countingStore) UpdateProduct(ctx context.Context, cardID, productID string, fields core.ProductFields) (*core.Product, error) {
	s.updates.Add(1)
	return s.MemoryStore.UpdateProduct(ctx, cardID, productID, fields)
}

func newApp(t *testing.T, store core.RemoteStore, opts ...AppOption) (*App, *core.Card) {
	t.Helper()
	ctx := context.Background()
	card, err := store.InsertCard(ctx, core.CardFields{Name: core.Ptr("Casa nova")})
	require.NoError(t, err)
	for _, p := range sample() {
		price := p.Price
		fields := core.ProductFields{Name: core.Ptr(p.Name), Price: &price, Category: core.Ptr(p.Category)}
		_, err := store.InsertProduct(ctx, card.ID, fields)
		require.NoError(t, err)
	}
	_, err = store.SaveShipping(ctx, card.ID, dec("7"))
	require.NoError(t, err)

	tbl := storage.NewManager(card.ID, store, cache.NewManager(kvstore.NewMemoryKVStore(), card.ID))
	app := NewApp(tbl, opts...)
	t.Cleanup(app.Close)
	require.NoError(t, app.Init(ctx))
	return app, card
}

func TestAppView(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore())

	view := app.View()
	assert.Equal(t, "Casa nova", view.Title)
	assert.Len(t, view.Products, 3)
	assert.Equal(t, []string{"Cozinha", "Sala"}, view.Categories)
	assert.True(t, view.Totals.Total.Equal(dec("45.99")))
	assert.Equal(t, "R$ 45,99", view.Formatted.Total)
	assert.Equal(t, "7.00", view.ShippingInput)

	app.SetCategory("Cozinha")
	view = app.View()
	assert.Len(t, view.Products, 1)
	assert.True(t, view.Totals.Subtotal.Equal(dec("10.00")))
	assert.True(t, view.Totals.Total.Equal(dec("17.00")))
	assert.Equal(t, []string{"Cozinha", "Sala"}, view.Categories)
}

func TestAppTitleFallback(t *testing.T) {
	tbl := storage.NewManager("missing", remote.NewMemoryStore(), nil)
	app := NewApp(tbl)
	defer app.Close()
	assert.Equal(t, DefaultTitle, app.Title())
}

func TestAppDebouncedSearch(t *testing.T) {
	changed := make(chan View, 1)
	app, _ := newApp(t, remote.NewMemoryStore(),
		WithDebounceDelay(10*time.Millisecond),
		WithOnChange(func(v View) { changed <- v }),
	)

	app.SetSearch("s")
	app.SetSearch("sof")

	select {
	case view := <-changed:
		require.Len(t, view.Products, 1)
		assert.Equal(t, "Sofá", view.Products[0].Name)
	case <-time.After(time.Second):
		t.Fatal("search was not applied")
	}
	assert.Equal(t, "sof", app.Filter().Search)
}

func TestAppSaveCreatesProduct(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore())
	ctx := context.Background()

	res := app.SaveProduct(ctx, write.ProductForm{Name: "  Tapete ", Price: "89,90", Importance: "Futuro"}, nil)
	require.True(t, res.OK(), res.Message())
	assert.Equal(t, "Tapete", res.Data().Name)
	assert.NotEmpty(t, res.Data().ID)

	products := app.Products()
	require.Len(t, products, 4)
	assert.Equal(t, res.Data().ID, products[3].ID)
	assert.Equal(t, core.ImportanceFuturo, products[3].Importance)
	assert.False(t, app.Loading())
}

func TestAppSaveValidation(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	app, _ := newApp(t, store)
	ctx := context.Background()
	inserts := store.inserts.Load()

	tests := []struct {
		name   string
		form   write.ProductForm
		upload *ImageUpload
		err    error
	}{
		{"empty name", write.ProductForm{Name: " ", Price: "10"}, nil, write.ErrEmptyName},
		{"zero price", write.ProductForm{Name: "X", Price: "0"}, nil, write.ErrInvalidPrice},
		{"negative price", write.ProductForm{Name: "X", Price: "-5"}, nil, write.ErrInvalidPrice},
		{"blank price", write.ProductForm{Name: "X", Price: ""}, nil, write.ErrInvalidPrice},
		{"not an image", write.ProductForm{Name: "X", Price: "10"},
			&ImageUpload{ContentType: "application/pdf", Data: []byte("%PDF")}, write.ErrInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := app.SaveProduct(ctx, tt.form, tt.upload)
			assert.ErrorIs(t, res.Err(), tt.err)

			id := app.Products()[0].ID
			require.NoError(t, app.StartEdit(id))
			res = app.SaveProduct(ctx, tt.form, tt.upload)
			assert.ErrorIs(t, res.Err(), tt.err)
			assert.Equal(t, id, app.EditingID(), "a rejected edit stays open")
			app.StartCreate()
		})
	}

	assert.Equal(t, inserts, store.inserts.Load(), "no insert reached the store")
	assert.Zero(t, store.updates.Load(), "no update reached the store")
	assert.Len(t, app.Products(), 3)
}

func TestAppImageTooLarge(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore(), WithMaxImageSize(4))

	res := app.SaveProduct(context.Background(), write.ProductForm{Name: "X", Price: "10"},
		&ImageUpload{ContentType: "image/png", Data: []byte("12345")})
	assert.ErrorIs(t, res.Err(), write.ErrInvalidImage)
}

func TestAppEditKeepsImage(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore())
	ctx := context.Background()

	upload := &ImageUpload{ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	created := app.SaveProduct(ctx, write.ProductForm{Name: "Quadro", Price: "40"}, upload)
	require.True(t, created.OK(), created.Message())
	assert.True(t, strings.HasPrefix(created.Data().Image, "data:image/png;base64,"))

	require.NoError(t, app.StartEdit(created.Data().ID))
	assert.Equal(t, created.Data().ID, app.EditingID())

	updated := app.SaveProduct(ctx, write.ProductForm{Name: "Quadro grande", Price: "55"}, nil)
	require.True(t, updated.OK(), updated.Message())
	assert.Equal(t, "Quadro grande", updated.Data().Name)
	assert.Equal(t, created.Data().Image, updated.Data().Image)
	assert.Empty(t, app.EditingID())

	products := app.Products()
	require.Len(t, products, 4)
	assert.Equal(t, "Quadro grande", products[3].Name)
}

func TestAppStartEditUnknown(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore())
	assert.ErrorIs(t, app.StartEdit("nope"), ErrNotInTable)
}

func TestAppBusyGuard(t *testing.T) {
	store := &gatedStore{MemoryStore: remote.NewMemoryStore(), entered: make(chan struct{}, 8), gate: make(chan struct{})}
	close(store.gate)
	app, _ := newApp(t, store)
	// drain the fixture inserts, then re-arm the gate
	for len(store.entered) > 0 {
		<-store.entered
	}
	store.gate = make(chan struct{})

	ctx := context.Background()
	var wg sync.WaitGroup
	var first core.Result[core.Product]
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = app.SaveProduct(ctx, write.ProductForm{Name: "Lento", Price: "1"}, nil)
	}()
	<-store.entered
	assert.True(t, app.Loading())

	second := app.SaveProduct(ctx, write.ProductForm{Name: "Outro", Price: "1"}, nil)
	assert.ErrorIs(t, second.Err(), ErrBusy)
	assert.ErrorIs(t, app.DeleteProduct(ctx, "x").Err(), ErrBusy)

	close(store.gate)
	wg.Wait()
	assert.True(t, first.OK(), first.Message())
	assert.False(t, app.Loading())
	assert.Len(t, app.Products(), 4)
}

func TestAppDeleteAndMove(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore())
	ctx := context.Background()
	products := app.Products()

	moved := app.MoveProduct(ctx, products[2].ID, products[0].ID)
	require.True(t, moved.OK(), moved.Message())
	order := app.Products()
	assert.Equal(t, []string{products[2].ID, products[0].ID, products[1].ID},
		[]string{order[0].ID, order[1].ID, order[2].ID})

	deleted := app.DeleteProduct(ctx, products[0].ID)
	require.True(t, deleted.OK(), deleted.Message())
	assert.Len(t, app.Products(), 2)
	assert.Len(t, app.View().Products, 2)
}

func TestAppShipping(t *testing.T) {
	app, _ := newApp(t, remote.NewMemoryStore(), WithDebounceDelay(time.Hour))
	ctx := context.Background()

	res := app.SaveShipping(ctx, "abc")
	assert.ErrorIs(t, res.Err(), write.ErrMalformedNumber)
	res = app.SaveShipping(ctx, "-1")
	assert.ErrorIs(t, res.Err(), core.ErrNegativeShipping)

	app.SetShippingInput("12,5")
	app.Flush()
	view := app.View()
	assert.Equal(t, "12.50", view.ShippingInput)
	assert.True(t, view.Totals.Total.Equal(dec("51.49")))

	app.SetShippingInput("")
	app.Flush()
	assert.Equal(t, "", app.View().ShippingInput)
}
