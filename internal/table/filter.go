package table

import (
	"strings"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Filter is the filter state of a product table. Zero fields match all.
type Filter struct {
	// Search is matched as a case-insensitive substring of the name,
	// category and description.
	Search string `json:"search,omitempty"`

	// Category must equal the product category exactly.
	Category string `json:"categoria,omitempty"`

	// Importance must equal the product importance exactly.
	Importance core.Importance `json:"importancia,omitempty"`
}

// Match reports whether p passes every set predicate.
func (f Filter) Match(p core.Product) bool {
	if term := strings.ToLower(f.Search); term != "" {
		if !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Category), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			return false
		}
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Importance != core.ImportanceNone && p.Importance != f.Importance {
		return false
	}
	return true
}

// Apply returns the matching products in a new slice. products is not modified.
func (f Filter) Apply(products []core.Product) []core.Product {
	out := make([]core.Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories in first-seen order.
func Categories(products []core.Product) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

// Totals are the figures shown under a product table.
type Totals struct {
	Count    int             `json:"total_produtos"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"frete"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums the prices of the products shown and adds shipping.
func ComputeTotals(shown []core.Product, shipping decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, p := range shown {
		subtotal = subtotal.Add(p.Price)
	}
	return Totals{
		Count:    len(shown),
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}

const currencySymbol = "R$"

var defaultPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency renders value as Brazilian reais, e.g. "R$ 1.234,56".
func FormatCurrency(value decimal.Decimal) string {
	return formatCurrency(defaultPrinter, value)
}

func formatCurrency(p *message.Printer, value decimal.Decimal) string {
	f, _ := value.Round(2).Float64()
	if f < 0 {
		return p.Sprintf("-%s %.2f", currencySymbol, -f)
	}
	return p.Sprintf("%s %.2f", currencySymbol, f)
}

// ShippingInput renders the shipping field: empty for zero, else two decimals.
func ShippingInput(shipping decimal.Decimal) string {
	if !shipping.IsPositive() {
		return ""
	}
	return shipping.StringFixed(2)
}

// printerFor returns a printer for a BCP 47 locale, falling back to pt-BR.
func printerFor(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		return defaultPrinter
	}
	return message.NewPrinter(tag)
}
