package write

import (
	"errors"
	"testing"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{name: "plain", raw: "10.00", want: "10"},
		{name: "comma separator", raw: "25,50", want: "25.5"},
		{name: "surrounding space", raw: " 3.49 ", want: "3.49"},
		{name: "zero", raw: "0", wantErr: ErrInvalidPrice},
		{name: "negative", raw: "-5", wantErr: ErrInvalidPrice},
		{name: "blank", raw: "  ", wantErr: ErrInvalidPrice},
		{name: "malformed", raw: "abc", wantErr: ErrMalformedNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseShipping(t *testing.T) {
	v, err := ParseShipping("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = ParseShipping("7")
	require.NoError(t, err)
	assert.Equal(t, "7.00", v.StringFixed(2))

	_, err = ParseShipping("-1")
	assert.ErrorIs(t, err, core.ErrNegativeShipping)

	_, err = ParseShipping("sete")
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestProductFormFields(t *testing.T) {
	fields, err := ProductForm{
		Name:       "  Cadeira ",
		Price:      "199.90",
		Category:   "Casa",
		Importance: "Essencial",
	}.Fields()
	require.NoError(t, err)
	assert.Equal(t, "Cadeira", *fields.Name)
	assert.Equal(t, "199.90", fields.Price.StringFixed(2))
	assert.Equal(t, "Casa", *fields.Category)
	assert.Equal(t, core.ImportanceEssencial, *fields.Importance)

	_, err = ProductForm{Name: "", Price: "1"}.Fields()
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = ProductForm{Name: "x", Price: "0"}.Fields()
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestValidateNewProduct(t *testing.T) {
	price := decimal.NewFromInt(5)
	assert.NoError(t, ValidateNewProduct(core.ProductFields{Name: core.Ptr("a"), Price: &price}))
	assert.ErrorIs(t, ValidateNewProduct(core.ProductFields{Price: &price}), ErrEmptyName)
	assert.ErrorIs(t, ValidateNewProduct(core.ProductFields{Name: core.Ptr("a")}), ErrInvalidPrice)

	neg := decimal.NewFromInt(-5)
	assert.ErrorIs(t, ValidateNewProduct(core.ProductFields{Name: core.Ptr("a"), Price: &neg}), ErrInvalidPrice)
}

func TestValidateProductUpdate(t *testing.T) {
	assert.NoError(t, ValidateProductUpdate(core.ProductFields{Category: core.Ptr("x")}))
	assert.ErrorIs(t, ValidateProductUpdate(core.ProductFields{Name: core.Ptr(" ")}), ErrEmptyName)
	zero := decimal.Zero
	assert.ErrorIs(t, ValidateProductUpdate(core.ProductFields{Price: &zero}), ErrInvalidPrice)
}

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage("image/png", 1024, 0))
	assert.ErrorIs(t, ValidateImage("application/pdf", 10, 0), ErrInvalidImage)
	assert.ErrorIs(t, ValidateImage("image/jpeg", MaxImageSize+1, 0), ErrInvalidImage)
}

func TestCardNameDuplicates(t *testing.T) {
	cards := []core.Card{{ID: "1", Name: "Café"}, {ID: "2", Name: "Cafe"}, {ID: "3", Name: "Mercado"}}

	tests := []struct {
		name      string
		candidate string
		exclude   string
		want      bool
	}{
		{name: "diacritic insensitive", candidate: "cafe", want: true},
		{name: "trailing space", candidate: "Cafe ", want: true},
		{name: "prefix is distinct", candidate: "Cafeteria", want: false},
		{name: "excluded card ignored", candidate: "Mercado", exclude: "3", want: false},
		{name: "other card still collides", candidate: "cafe", exclude: "1", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateName(tt.candidate, cards, tt.exclude))
		})
	}
}

func TestValidateCardName(t *testing.T) {
	cards := []core.Card{{ID: "1", Name: "Café"}}
	assert.ErrorIs(t, ValidateCardName("  ", cards, ""), ErrEmptyName)

	err := ValidateCardName("CAFE", cards, "")
	assert.True(t, errors.Is(err, ErrDuplicateCardName))
	assert.NoError(t, ValidateCardName("Café", cards, "1"))
}
