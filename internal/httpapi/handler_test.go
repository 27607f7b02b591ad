package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/httpapi"
	"github.com/rzpsarthak13/cardtable/pkg/cardtable"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	t      *testing.T
	srv    *httptest.Server
	client *cardtable.Client
}

func newServer(t *testing.T) *server {
	t.Helper()
	client, err := cardtable.NewClient(cardtable.DefaultConfig(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.NewHandler(client, nil).Router())
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, client.Close())
	})
	return &server{t: t, srv: srv, client: client}
}

func (s *server) do(method, path string, body interface{}, out interface{}) int {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *server) createCard(name string) core.Card {
	s.t.Helper()
	var c core.Card
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/cards", map[string]string{"name": name}, &c))
	return c
}

func (s *server) createProduct(cardID string, form map[string]interface{}) core.Product {
	s.t.Helper()
	var p core.Product
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/cards/"+cardID+"/products", form, &p))
	return p
}

type view struct {
	Title      string         `json:"title"`
	Products   []core.Product `json:"produtos"`
	Categories []string       `json:"categorias"`
	Formatted  struct {
		Subtotal string `json:"subtotal"`
		Total    string `json:"total"`
	} `json:"formatted"`
	ShippingInput string `json:"shipping_input"`
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCardRoutes(t *testing.T) {
	s := newServer(t)
	c := s.createCard("Casa")

	var dup map[string]string
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/cards", map[string]string{"name": "casa"}, &dup))
	assert.NotEmpty(t, dup["error"])

	var bad map[string]string
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/cards", map[string]string{"name": " "}, &bad))

	var cards []core.Card
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/cards", nil, &cards))
	assert.Len(t, cards, 1)

	var updated core.Card
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/cards/"+c.ID, map[string]string{"description": "nova"}, &updated))
	assert.Equal(t, "nova", updated.Description)

	var empty map[string]string
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/cards/"+c.ID, map[string]string{}, &empty))

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/cards/"+c.ID, nil, nil))
	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/cards/"+c.ID, nil, &missing))
}

func TestProductRoutes(t *testing.T) {
	s := newServer(t)
	c := s.createCard("Cozinha nova")
	base := "/cards/" + c.ID

	a := s.createProduct(c.ID, map[string]interface{}{"nome": "Panela", "preco": "10", "categoria": "Cozinha"})
	b := s.createProduct(c.ID, map[string]interface{}{"nome": "Sofá", "preco": "25.50", "categoria": "Sala"})
	p := s.createProduct(c.ID, map[string]interface{}{"nome": "Pano", "preco": "3,49"})
	assert.Equal(t, "tabela_cozinha_nova", a.TableName)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base+"/products", map[string]interface{}{"nome": "X", "preco": "0"}, &errBody))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base+"/products", map[string]interface{}{
		"nome": "X", "preco": "1",
		"upload": map[string]interface{}{"content_type": "text/plain", "data": []byte("hi")},
	}, &errBody))

	var shipping map[string]interface{}
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, base+"/shipping", map[string]interface{}{"value": 7}, &shipping))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, base+"/shipping", map[string]interface{}{"value": "-2"}, &errBody))

	var v view
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/products", nil, &v))
	assert.Equal(t, "Cozinha nova", v.Title)
	assert.Len(t, v.Products, 3)
	assert.Equal(t, "R$ 45,99", v.Formatted.Total)
	assert.Equal(t, "7.00", v.ShippingInput)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/products?categoria=Cozinha", nil, &v))
	assert.Len(t, v.Products, 1)
	assert.Equal(t, "R$ 17,00", v.Formatted.Total)

	var moved struct {
		Products []core.Product `json:"produtos"`
	}
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/products/move",
		map[string]string{"dragged_id": p.ID, "target_id": a.ID}, &moved))
	require.Len(t, moved.Products, 3)
	assert.Equal(t, []string{p.ID, a.ID, b.ID}, []string{moved.Products[0].ID, moved.Products[1].ID, moved.Products[2].ID})

	var updated core.Product
	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, base+"/products/"+b.ID,
		map[string]interface{}{"nome": "Sofá retrátil", "preco": "30"}, &updated))
	assert.Equal(t, "Sofá retrátil", updated.Name)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, base+"/products/missing",
		map[string]interface{}{"nome": "X", "preco": "1"}, &errBody))

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/products/"+a.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, base+"/products/"+a.ID, nil, &errBody))

	var stats core.Stats
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/stats", nil, &stats))
	assert.Equal(t, 2, stats.ProductCount)
	assert.Equal(t, "33.49", stats.TotalValue.StringFixed(2))

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, base+"/shipping", nil, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, base+"/products", nil, &v))
	assert.Equal(t, "", v.ShippingInput)
}

func TestMalformedBody(t *testing.T) {
	s := newServer(t)
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/cards", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMoveUnknownProduct(t *testing.T) {
	s := newServer(t)
	c := s.createCard("Quarto")
	var body map[string]string
	code := s.do(http.MethodPost, "/cards/"+c.ID+"/products/move",
		map[string]string{"dragged_id": "nope", "target_id": "nada"}, &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["error"])
}

func TestProductsOfUnknownCard(t *testing.T) {
	s := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/cards/bogus/products", nil, &body))
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/cards/bogus/shipping", map[string]interface{}{"value": 3}, &body))
}

func TestRefreshPicksUpRemoteChanges(t *testing.T) {
	s := newServer(t)
	c := s.createCard("Varanda")
	s.createProduct(c.ID, map[string]interface{}{"nome": "Rede", "preco": "60"})

	price := decimal.RequireFromString("15")
	_, err := s.client.Remote().InsertProduct(context.Background(), c.ID,
		core.ProductFields{Name: core.Ptr("Vaso"), Price: &price})
	require.NoError(t, err)

	var v view
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/cards/"+c.ID+"/products", nil, &v))
	assert.Len(t, v.Products, 1)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/cards/"+c.ID+"/refresh", nil, &v))
	assert.Len(t, v.Products, 2)
	assert.Equal(t, "R$ 75,00", v.Formatted.Total)
}
