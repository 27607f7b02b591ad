// Package table is the controller of a product table: it keeps the view
// state of one card, turns user actions into storage calls and computes
// what the table shows.
package table

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/storage"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/message"
)

// DefaultTitle is shown when the card name is unknown.
const DefaultTitle = "Gerenciador de Produtos"

var (
	// ErrBusy is returned when a save starts while another is in flight.
	ErrBusy = errors.New("another operation is in progress")

	// ErrNotInTable is returned for product ids the table does not show.
	ErrNotInTable = errors.New("product is not in the table")
)

// ImageUpload is an image attached to the product form.
type ImageUpload struct {
	ContentType string
	Data        []byte
}

// DataURL encodes the image the way it is stored on the product.
func (u ImageUpload) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", u.ContentType, base64.StdEncoding.EncodeToString(u.Data))
}

// View is everything the table renders.
type View struct {
	Title         string          `json:"title"`
	Products      []core.Product  `json:"produtos"`
	Categories    []string        `json:"categorias"`
	Filter        Filter          `json:"filter"`
	Totals        Totals          `json:"totals"`
	ShippingInput string          `json:"shipping_input"`
	Formatted     FormattedTotals `json:"formatted"`
	EditingID     string          `json:"editing_id,omitempty"`
	Loading       bool            `json:"loading"`
}

// FormattedTotals are the totals as currency text.
type FormattedTotals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"frete"`
	Total    string `json:"total"`
}

// App is the controller of one card's product table. It keeps its own copy
// of the products and updates it from the records storage returns.
type App struct {
	table        *storage.Manager
	logger       *zap.Logger
	printer      *message.Printer
	maxImageSize int64
	onChange     func(View)

	mu        sync.Mutex
	products  []core.Product
	filter    Filter
	editingID string
	loading   bool

	search   *Debouncer
	shipping *Debouncer
}

// AppOption configures an App.
type AppOption func(*App)

// WithAppLogger sets the logger.
func WithAppLogger(logger *zap.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDebounceDelay sets the delay of search and shipping input.
func WithDebounceDelay(delay time.Duration) AppOption {
	return func(a *App) {
		a.search = NewDebouncer(delay)
		a.shipping = NewDebouncer(delay)
	}
}

// WithMaxImageSize caps image uploads.
func WithMaxImageSize(size int64) AppOption {
	return func(a *App) {
		if size > 0 {
			a.maxImageSize = size
		}
	}
}

// WithLocale sets the locale used for currency text.
func WithLocale(locale string) AppOption {
	return func(a *App) { a.printer = printerFor(locale) }
}

// WithOnChange registers a callback run after debounced updates.
func WithOnChange(fn func(View)) AppOption {
	return func(a *App) { a.onChange = fn }
}

// NewApp creates the controller of table.
func NewApp(table *storage.Manager, opts ...AppOption) *App {
	a := &App{
		table:        table,
		logger:       zap.NewNop(),
		printer:      defaultPrinter,
		maxImageSize: write.MaxImageSize,
		products:     []core.Product{},
		search:       NewDebouncer(DefaultDebounceDelay),
		shipping:     NewDebouncer(DefaultDebounceDelay),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("table").With(zap.String("card_id", table.CardID()))
	return a
}

// Init initializes storage and loads the products.
func (a *App) Init(ctx context.Context) error {
	a.table.Init(ctx)
	res := a.table.LoadProducts(ctx)
	if !res.OK() {
		return res.Err()
	}
	a.mu.Lock()
	a.products = res.Data()
	a.mu.Unlock()
	return nil
}

// Reload replaces the local products with the storage replica.
func (a *App) Reload() {
	products := a.table.Products()
	a.mu.Lock()
	a.products = products
	a.mu.Unlock()
}

// Refresh reloads the card from the remote store and replaces the local
// products with the result.
func (a *App) Refresh(ctx context.Context) {
	a.table.Refresh(ctx)
	a.Reload()
	a.notify()
}

// Products returns a copy of all products, unfiltered.
func (a *App) Products() []core.Product {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Product, len(a.products))
	copy(out, a.products)
	return out
}

// Title returns the card name, or DefaultTitle when it is unknown.
func (a *App) Title() string {
	if name := a.table.CardName(); name != "" {
		return name
	}
	return DefaultTitle
}

// View computes what the table shows for the current state.
func (a *App) View() View {
	return a.ViewWith(a.Filter())
}

// ViewWith computes the view for filter without changing the stored filter.
func (a *App) ViewWith(filter Filter) View {
	a.mu.Lock()
	products := make([]core.Product, len(a.products))
	copy(products, a.products)
	editingID := a.editingID
	loading := a.loading
	a.mu.Unlock()

	shown := filter.Apply(products)
	shipping := a.table.Shipping()
	totals := ComputeTotals(shown, shipping)
	return View{
		Title:         a.Title(),
		Products:      shown,
		Categories:    Categories(products),
		Filter:        filter,
		Totals:        totals,
		ShippingInput: ShippingInput(shipping),
		Formatted: FormattedTotals{
			Subtotal: formatCurrency(a.printer, totals.Subtotal),
			Shipping: formatCurrency(a.printer, totals.Shipping),
			Total:    formatCurrency(a.printer, totals.Total),
		},
		EditingID: editingID,
		Loading:   loading,
	}
}

// Filter returns the current filter.
func (a *App) Filter() Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// SetFilter replaces the whole filter immediately.
func (a *App) SetFilter(f Filter) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
}

// SetCategory filters by category immediately; "" shows all.
func (a *App) SetCategory(category string) {
	a.mu.Lock()
	a.filter.Category = category
	a.mu.Unlock()
}

// SetImportance filters by importance immediately; ImportanceNone shows all.
func (a *App) SetImportance(level core.Importance) {
	a.mu.Lock()
	a.filter.Importance = level
	a.mu.Unlock()
}

// SetSearch applies a search term once typing pauses.
func (a *App) SetSearch(term string) {
	a.search.Call(func() {
		a.mu.Lock()
		a.filter.Search = term
		a.mu.Unlock()
		a.notify()
	})
}

// StartCreate opens the form for a new product.
func (a *App) StartCreate() {
	a.mu.Lock()
	a.editingID = ""
	a.mu.Unlock()
}

// StartEdit opens the form for an existing product.
func (a *App) StartEdit(productID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.indexOf(productID) < 0 {
		return fmt.Errorf("%w: %s", ErrNotInTable, productID)
	}
	a.editingID = productID
	return nil
}

// EditingID returns the product being edited, or "" when creating.
func (a *App) EditingID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editingID
}

// Loading reports whether a save or delete is in flight.
func (a *App) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

func (a *App) begin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loading {
		return false
	}
	a.loading = true
	return true
}

func (a *App) end() {
	a.mu.Lock()
	a.loading = false
	a.mu.Unlock()
}

// SaveProduct validates the form and creates a product, or updates the one
// being edited. The stored record returned by storage replaces the local
// entry. A save while another is in flight is refused with ErrBusy.
func (a *App) SaveProduct(ctx context.Context, form write.ProductForm, upload *ImageUpload) core.Result[core.Product] {
	editingID := a.EditingID()
	res := a.save(ctx, editingID, form, upload)
	if res.OK() && editingID != "" {
		a.mu.Lock()
		if a.editingID == editingID {
			a.editingID = ""
		}
		a.mu.Unlock()
	}
	return res
}

// CreateProduct saves form as a new product regardless of the edit state.
func (a *App) CreateProduct(ctx context.Context, form write.ProductForm, upload *ImageUpload) core.Result[core.Product] {
	return a.save(ctx, "", form, upload)
}

// UpdateProduct saves form over productID regardless of the edit state.
func (a *App) UpdateProduct(ctx context.Context, productID string, form write.ProductForm, upload *ImageUpload) core.Result[core.Product] {
	if productID == "" {
		return core.Failure[core.Product](fmt.Errorf("%w: empty id", ErrNotInTable))
	}
	return a.save(ctx, productID, form, upload)
}

func (a *App) save(ctx context.Context, editingID string, form write.ProductForm, upload *ImageUpload) core.Result[core.Product] {
	if upload != nil {
		if err := write.ValidateImage(upload.ContentType, int64(len(upload.Data)), a.maxImageSize); err != nil {
			return core.Failure[core.Product](err)
		}
		form.Image = upload.DataURL()
	}

	if editingID != "" && upload == nil && form.Image == "" {
		if current, ok := a.table.ProductByID(editingID); ok {
			form.Image = current.Image
		}
	}

	fields, err := form.Fields()
	if err != nil {
		return core.Failure[core.Product](err)
	}

	if !a.begin() {
		return core.Failure[core.Product](ErrBusy)
	}
	defer a.end()

	if editingID != "" {
		res := a.table.UpdateProduct(ctx, editingID, fields)
		if res.OK() {
			a.mu.Lock()
			if idx := a.indexOf(editingID); idx >= 0 {
				a.products[idx] = res.Data()
			}
			a.mu.Unlock()
		}
		return res
	}

	res := a.table.AddProduct(ctx, fields)
	if res.OK() {
		a.mu.Lock()
		a.products = append(a.products, res.Data())
		a.mu.Unlock()
	}
	return res
}

// DeleteProduct removes a product.
func (a *App) DeleteProduct(ctx context.Context, productID string) core.Result[string] {
	if !a.begin() {
		return core.Failure[string](ErrBusy)
	}
	defer a.end()

	res := a.table.RemoveProduct(ctx, productID)
	if res.OK() {
		a.mu.Lock()
		if idx := a.indexOf(productID); idx >= 0 {
			a.products = append(a.products[:idx], a.products[idx+1:]...)
		}
		a.mu.Unlock()
	}
	return res
}

// MoveProduct drops draggedID onto targetID and takes the new order.
func (a *App) MoveProduct(ctx context.Context, draggedID, targetID string) core.Result[storage.ReorderReport] {
	res := a.table.MoveProduct(ctx, draggedID, targetID)
	a.Reload()
	return res
}

// SetShippingInput saves the typed shipping value once typing pauses.
func (a *App) SetShippingInput(raw string) {
	a.shipping.Call(func() {
		res := a.SaveShipping(context.Background(), raw)
		if !res.OK() {
			a.logger.Warn("shipping not saved", zap.String("input", raw), zap.Error(res.Err()))
		}
		a.notify()
	})
}

// SaveShipping parses and saves the shipping value now. Blank input is zero.
func (a *App) SaveShipping(ctx context.Context, raw string) core.Result[decimal.Decimal] {
	value, err := write.ParseShipping(raw)
	if err != nil {
		return core.Failure[decimal.Decimal](err)
	}
	return a.table.SaveShipping(ctx, value)
}

// Flush runs pending debounced input now.
func (a *App) Flush() {
	a.search.Flush()
	a.shipping.Flush()
}

// Close drops pending debounced input.
func (a *App) Close() {
	a.search.Stop()
	a.shipping.Stop()
}

func (a *App) notify() {
	if a.onChange != nil {
		a.onChange(a.View())
	}
}

// indexOf must be called with mu held.
func (a *App) indexOf(productID string) int {
	for i := range a.products {
		if a.products[i].ID == productID {
			return i
		}
	}
	return -1
}
