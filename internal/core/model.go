package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Importance classifies a product's priority. It is stored as 1..4 and
// displayed as text. The zero value means no importance was set.
type Importance int

const (
	ImportanceNone Importance = iota
	ImportanceLuxo
	ImportanceImportante
	ImportanceEssencial
	ImportanceFuturo
)

var importanceNames = map[Importance]string{
	ImportanceLuxo:       "Luxo",
	ImportanceImportante: "Importante",
	ImportanceEssencial:  "Essencial",
	ImportanceFuturo:     "Futuro",
}

// ImportanceLevels lists the selectable levels in storage order.
var ImportanceLevels = []Importance{ImportanceLuxo, ImportanceImportante, ImportanceEssencial, ImportanceFuturo}

// ParseImportance maps display text to a level. Unknown text yields ImportanceNone.
func ParseImportance(text string) Importance {
	for level, name := range importanceNames {
		if name == text {
			return level
		}
	}
	return ImportanceNone
}

// ImportanceFromNumber maps a stored number to a level. Numbers outside 1..4
// yield ImportanceNone.
func ImportanceFromNumber(n int64) Importance {
	level := Importance(n)
	if !level.Valid() {
		return ImportanceNone
	}
	return level
}

// Valid reports whether the level is one of the four defined values.
func (i Importance) Valid() bool {
	_, ok := importanceNames[i]
	return ok
}

// String returns the display text, or "" for ImportanceNone.
func (i Importance) String() string {
	return importanceNames[i]
}

// MarshalJSON renders the display text, or null when unset.
func (i Importance) MarshalJSON() ([]byte, error) {
	if !i.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(i.String())
}

// UnmarshalJSON accepts the display text, the stored number or null.
func (i *Importance) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = ImportanceNone
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*i = ParseImportance(text)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid importance %s", data)
	}
	*i = ImportanceFromNumber(n)
	return nil
}

// Card is a named collection of products with a single shipping cost.
// ProductCount and TotalValue are derived from the card's products.
type Card struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	ProductCount int             `json:"quantidade_produtos"`
	TotalValue   decimal.Decimal `json:"valor_total"`
	Shipping     decimal.Decimal `json:"frete"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CardFields carries a partial card write. Nil fields are left untouched.
type CardFields struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// Empty reports whether no field is set.
func (f CardFields) Empty() bool {
	return f.Name == nil && f.Description == nil && f.ImageURL == nil
}

// Product is a priced line item owned by exactly one card.
type Product struct {
	ID          string          `json:"id"`
	CardID      string          `json:"id_card"`
	CardName    string          `json:"nome_card,omitempty"`
	Name        string          `json:"nome"`
	Price       decimal.Decimal `json:"preco"`
	Image       string          `json:"imagem,omitempty"`
	Link        string          `json:"link,omitempty"`
	Category    string          `json:"categoria,omitempty"`
	Description string          `json:"descricao,omitempty"`
	Importance  Importance      `json:"importancia"`
	Order       int             `json:"ordem"`
	TableName   string          `json:"tabela_personalizada,omitempty"`
}

// ProductFields carries a product insert or a partial product update.
// Nil fields keep their stored value on update and their default on insert.
type ProductFields struct {
	Name        *string          `json:"nome,omitempty"`
	Price       *decimal.Decimal `json:"preco,omitempty"`
	Image       *string          `json:"imagem,omitempty"`
	Link        *string          `json:"link,omitempty"`
	Category    *string          `json:"categoria,omitempty"`
	Description *string          `json:"descricao,omitempty"`
	Importance  *Importance      `json:"importancia,omitempty"`
	Order       *int             `json:"ordem,omitempty"`
}

// Apply copies every set field onto p.
func (f ProductFields) Apply(p *Product) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.Image != nil {
		p.Image = *f.Image
	}
	if f.Link != nil {
		p.Link = *f.Link
	}
	if f.Category != nil {
		p.Category = *f.Category
	}
	if f.Description != nil {
		p.Description = *f.Description
	}
	if f.Importance != nil {
		p.Importance = *f.Importance
	}
	if f.Order != nil {
		p.Order = *f.Order
	}
}

// Stats are aggregates derived from a product list.
type Stats struct {
	ProductCount  int             `json:"total_produtos"`
	TotalValue    decimal.Decimal `json:"total_valor"`
	CategoryCount int             `json:"total_categorias"`
}

// ComputeStats counts products, sums their prices and counts distinct
// non-empty categories.
func ComputeStats(products []Product) Stats {
	stats := Stats{ProductCount: len(products), TotalValue: decimal.Zero}
	categories := make(map[string]struct{})
	for _, p := range products {
		stats.TotalValue = stats.TotalValue.Add(p.Price)
		if p.Category != "" {
			categories[p.Category] = struct{}{}
		}
	}
	stats.CategoryCount = len(categories)
	return stats
}

// Ptr returns a pointer to v. It keeps partial-field literals short.
func Ptr[T any](v T) *T {
	return &v
}
