// Package httpapi serves cards and their product tables as JSON over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rzpsarthak13/cardtable/internal/card"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/storage"
	"github.com/rzpsarthak13/cardtable/internal/table"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"go.uber.org/zap"
)

// Backend is what the handler needs from a cardtable client.
type Backend interface {
	Cards() *card.Service
	Table(ctx context.Context, cardID string) (*storage.Manager, error)
	App(ctx context.Context, cardID string) (*table.App, error)
}

// Handler exposes card and product table endpoints.
type Handler struct {
	backend Backend
	logger  *zap.Logger
}

// NewHandler creates a handler over backend.
func NewHandler(backend Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{backend: backend, logger: logger.Named("http")}
}

// Router returns a chi router with every route and the standard middleware.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Route("/cards", func(r chi.Router) {
		r.Get("/", h.listCards)
		r.Post("/", h.createCard)
		r.Route("/{cardID}", func(r chi.Router) {
			r.Get("/", h.getCard)
			r.Put("/", h.updateCard)
			r.Delete("/", h.deleteCard)

			r.Get("/products", h.listProducts)
			r.Post("/products", h.createProduct)
			r.Post("/products/move", h.moveProduct)
			r.Put("/products/{productID}", h.updateProduct)
			r.Delete("/products/{productID}", h.deleteProduct)

			r.Put("/shipping", h.saveShipping)
			r.Delete("/shipping", h.clearShipping)

			r.Get("/stats", h.stats)
			r.Post("/refresh", h.refresh)
		})
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.backend.Cards().List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, cards)
}

func (h *Handler) createCard(w http.ResponseWriter, r *http.Request) {
	var req core.CardFields
	if !decode(w, r, &req) {
		return
	}
	c, err := h.backend.Cards().Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, c)
}

func (h *Handler) getCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.backend.Cards().Get(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) updateCard(w http.ResponseWriter, r *http.Request) {
	var req core.CardFields
	if !decode(w, r, &req) {
		return
	}
	c, err := h.backend.Cards().Update(r.Context(), chi.URLParam(r, "cardID"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *Handler) deleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Cards().Delete(r.Context(), chi.URLParam(r, "cardID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) app(w http.ResponseWriter, r *http.Request) (*table.App, bool) {
	app, err := h.backend.App(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return app, true
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := table.Filter{
		Search:     q.Get("search"),
		Category:   q.Get("categoria"),
		Importance: core.ParseImportance(q.Get("importancia")),
	}
	if n, err := strconv.Atoi(q.Get("importancia")); err == nil {
		filter.Importance = core.ImportanceFromNumber(int64(n))
	}
	respond(w, http.StatusOK, app.ViewWith(filter))
}

// productRequest is the product form plus an optional image upload. Data
// is base64 in JSON.
type productRequest struct {
	write.ProductForm
	Upload *struct {
		ContentType string `json:"content_type"`
		Data        []byte `json:"data"`
	} `json:"upload,omitempty"`
}

func (p productRequest) upload() *table.ImageUpload {
	if p.Upload == nil {
		return nil
	}
	return &table.ImageUpload{ContentType: p.Upload.ContentType, Data: p.Upload.Data}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decode(w, r, &req) {
		return
	}
	res := app.CreateProduct(r.Context(), req.ProductForm, req.upload())
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	respond(w, http.StatusCreated, res.Data())
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decode(w, r, &req) {
		return
	}
	res := app.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), req.ProductForm, req.upload())
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	respond(w, http.StatusOK, res.Data())
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	res := app.DeleteProduct(r.Context(), chi.URLParam(r, "productID"))
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	DraggedID string `json:"dragged_id"`
	TargetID  string `json:"target_id"`
}

func (h *Handler) moveProduct(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	res := app.MoveProduct(r.Context(), req.DraggedID, req.TargetID)
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"report":   res.Data(),
		"produtos": app.Products(),
	})
}

// shippingRequest accepts the value as a JSON number or as typed text.
type shippingRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s shippingRequest) raw() (string, error) {
	v := bytes.TrimSpace(s.Value)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", nil
	}
	if v[0] == '"' {
		var text string
		if err := json.Unmarshal(v, &text); err != nil {
			return "", err
		}
		return text, nil
	}
	return string(v), nil
}

func (h *Handler) saveShipping(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	var req shippingRequest
	if !decode(w, r, &req) {
		return
	}
	raw, err := req.raw()
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	res := app.SaveShipping(r.Context(), raw)
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"frete": res.Data(), "totals": app.View().Totals})
}

func (h *Handler) clearShipping(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	res := app.SaveShipping(r.Context(), "")
	if !res.OK() {
		h.fail(w, r, res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	app, ok := h.app(w, r)
	if !ok {
		return
	}
	app.Refresh(r.Context())
	respond(w, http.StatusOK, app.View())
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	m, err := h.backend.Table(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m.Init(r.Context())
	respond(w, http.StatusOK, m.Stats())
}

// statusFor maps a failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, write.ErrDuplicateCardName), errors.Is(err, table.ErrBusy):
		return http.StatusConflict
	case write.IsValidation(err), errors.Is(err, core.ErrNoFields):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound), errors.Is(err, table.ErrNotInTable), errors.Is(err, storage.ErrUnknownProduct):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	respondError(w, status, err)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, status int, err error) {
	respond(w, status, map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
