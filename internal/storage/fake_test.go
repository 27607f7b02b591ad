package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/shopspring/decimal"
)

var errRemote = errors.New("remote unavailable")

// fakeRemote records calls and fails the operations named in failOn.
type fakeRemote struct {
	mu       sync.Mutex
	card     core.Card
	products []core.Product
	shipping decimal.Decimal
	nextID   int

	failOn      map[string]bool
	failOrderOn map[string]bool
	panicOn     map[string]bool
	calls       map[string]int
	orderWrites []core.OrderWrite

	// When fetchGate is set, FetchProducts closes fetchStarted and waits
	// for fetchGate before reading.
	fetchStarted chan struct{}
	fetchGate    chan struct{}
}

func newFakeRemote(cardID, name string, products ...core.Product) *fakeRemote {
	for i := range products {
		products[i].CardID = cardID
	}
	return &fakeRemote{
		card:        core.Card{ID: cardID, Name: name},
		products:    products,
		shipping:    decimal.Zero,
		failOn:      map[string]bool{},
		failOrderOn: map[string]bool{},
		panicOn:     map[string]bool{},
		calls:       map[string]int{},
	}
}

func (f *fakeRemote) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.panicOn[op] {
		panic(op + " exploded")
	}
	if f.failOn[op] {
		return fmt.Errorf("%s: %w", op, errRemote)
	}
	return nil
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) ListCards(context.Context) ([]core.Card, error) {
	if err := f.enter("ListCards"); err != nil {
		return nil, err
	}
	return []core.Card{f.card}, nil
}

func (f *fakeRemote) CardByID(_ context.Context, id string) (*core.Card, error) {
	if err := f.enter("CardByID"); err != nil {
		return nil, err
	}
	if id != f.card.ID {
		return nil, core.ErrNotFound
	}
	c := f.card
	return &c, nil
}

func (f *fakeRemote) InsertCard(context.Context, core.CardFields) (*core.Card, error) {
	return nil, errors.New("not supported")
}

func (f *fakeRemote) UpdateCard(context.Context, string, core.CardFields) (*core.Card, error) {
	return nil, errors.New("not supported")
}

func (f *fakeRemote) DeleteCard(context.Context, string) error {
	return errors.New("not supported")
}

func (f *fakeRemote) FetchProducts(context.Context, string) ([]core.Product, error) {
	if err := f.enter("FetchProducts"); err != nil {
		return nil, err
	}
	if f.fetchGate != nil {
		close(f.fetchStarted)
		<-f.fetchGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Product, len(f.products))
	copy(out, f.products)
	return out, nil
}

func (f *fakeRemote) InsertProduct(_ context.Context, cardID string, fields core.ProductFields) (*core.Product, error) {
	if err := f.enter("InsertProduct"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := core.Product{ID: fmt.Sprintf("new-%d", f.nextID), CardID: cardID, CardName: f.card.Name, TableName: "tabela_fake"}
	fields.Apply(&p)
	f.products = append(f.products, p)
	return &p, nil
}

func (f *fakeRemote) UpdateProduct(_ context.Context, _ string, productID string, fields core.ProductFields) (*core.Product, error) {
	if err := f.enter("UpdateProduct"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == productID {
			fields.Apply(&f.products[i])
			p := f.products[i]
			return &p, nil
		}
	}
	// Rows outside the replica still answer so the anomaly path can be hit.
	p := core.Product{ID: productID}
	fields.Apply(&p)
	return &p, nil
}

func (f *fakeRemote) DeleteProduct(_ context.Context, _ string, productID string) error {
	if err := f.enter("DeleteProduct"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.products {
		if f.products[i].ID == productID {
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeRemote) SetProductOrder(_ context.Context, cardID, productID string, position int) error {
	if err := f.enter("SetProductOrder"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOrderOn[productID] {
		return fmt.Errorf("order %s: %w", productID, errRemote)
	}
	f.orderWrites = append(f.orderWrites, core.OrderWrite{CardID: cardID, ProductID: productID, Position: position})
	return nil
}

func (f *fakeRemote) FetchShipping(context.Context, string) (decimal.Decimal, error) {
	if err := f.enter("FetchShipping"); err != nil {
		return decimal.Zero, err
	}
	return f.shipping, nil
}

func (f *fakeRemote) SaveShipping(_ context.Context, _ string, value decimal.Decimal) (decimal.Decimal, error) {
	if err := f.enter("SaveShipping"); err != nil {
		return decimal.Zero, err
	}
	f.mu.Lock()
	f.shipping = value
	f.mu.Unlock()
	return value, nil
}

func (f *fakeRemote) ClearShipping(ctx context.Context, cardID string) error {
	_, err := f.SaveShipping(ctx, cardID, decimal.Zero)
	return err
}

func (f *fakeRemote) Close() error { return nil }

// listQueue is a minimal WriteBackQueue.
type listQueue struct {
	mu     sync.Mutex
	writes []*core.OrderWrite
	fail   bool
}

func (q *listQueue) Enqueue(_ context.Context, w *core.OrderWrite) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue full")
	}
	q.writes = append(q.writes, w)
	return nil
}

func (q *listQueue) Dequeue(context.Context, int) ([]*core.OrderWrite, error) { return nil, nil }

func (q *listQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes)
}

func (q *listQueue) Close() error { return nil }
