// Package write validates product, card and shipping input before it is
// handed to a card table. Nothing here talks to the remote store.
package write

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/schema"
	"github.com/shopspring/decimal"
)

// MaxImageSize is the largest accepted product image, in bytes.
const MaxImageSize int64 = 5 * 1024 * 1024

var (
	// ErrEmptyName is returned when a product or card name is blank after trimming.
	ErrEmptyName = errors.New("name is required")

	// ErrInvalidPrice is returned when a price is missing or not greater than zero.
	ErrInvalidPrice = errors.New("price must be greater than zero")

	// ErrMalformedNumber is returned when a price or shipping value is not numeric.
	ErrMalformedNumber = errors.New("malformed number")

	// ErrDuplicateCardName is returned when a card name collides with an existing card.
	ErrDuplicateCardName = errors.New("a card with this name already exists")

	// ErrInvalidImage is returned for attachments that are not images or are too large.
	ErrInvalidImage = errors.New("invalid image")
)

var validationErrors = []error{
	ErrEmptyName,
	ErrInvalidPrice,
	ErrMalformedNumber,
	ErrDuplicateCardName,
	ErrInvalidImage,
	core.ErrNegativeShipping,
}

// IsValidation reports whether err was produced by local validation.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseNumber parses a decimal typed by a user. A lone comma is accepted as
// the decimal separator.
func parseNumber(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	return d, nil
}

// ParsePrice parses and validates a product price. Blank, malformed, zero
// and negative prices are all rejected.
func ParsePrice(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, ErrInvalidPrice
	}
	price, err := parseNumber(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidatePrice(price); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// ValidatePrice checks that a price is strictly positive.
func ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidPrice, price.String())
	}
	return nil
}

// ParseShipping parses a shipping value. Blank input means zero; malformed
// and negative input is rejected.
func ParseShipping(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	value, err := parseNumber(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateShipping(value); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

// ValidateShipping checks that a shipping value is not negative.
func ValidateShipping(value decimal.Decimal) error {
	if value.IsNegative() {
		return core.ErrNegativeShipping
	}
	return nil
}

// ValidateNewProduct checks the fields required to create a product.
func ValidateNewProduct(fields core.ProductFields) error {
	if fields.Name == nil || strings.TrimSpace(*fields.Name) == "" {
		return ErrEmptyName
	}
	if fields.Price == nil {
		return ErrInvalidPrice
	}
	return ValidatePrice(*fields.Price)
}

// ValidateProductUpdate checks the fields a partial update sets.
func ValidateProductUpdate(fields core.ProductFields) error {
	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return ErrEmptyName
	}
	if fields.Price != nil {
		return ValidatePrice(*fields.Price)
	}
	return nil
}

// ProductForm is product input exactly as typed into the product form.
type ProductForm struct {
	Name        string `json:"nome"`
	Price       string `json:"preco"`
	Image       string `json:"imagem"`
	Link        string `json:"link"`
	Category    string `json:"categoria"`
	Description string `json:"descricao"`
	Importance  string `json:"importancia"`
}

// Fields validates the form and converts it to a full product write.
// Every text field is trimmed; unknown importance text clears the level.
func (f ProductForm) Fields() (core.ProductFields, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return core.ProductFields{}, ErrEmptyName
	}
	price, err := ParsePrice(f.Price)
	if err != nil {
		return core.ProductFields{}, err
	}
	importance := core.ParseImportance(strings.TrimSpace(f.Importance))
	return core.ProductFields{
		Name:        &name,
		Price:       &price,
		Image:       core.Ptr(strings.TrimSpace(f.Image)),
		Link:        core.Ptr(strings.TrimSpace(f.Link)),
		Category:    core.Ptr(strings.TrimSpace(f.Category)),
		Description: core.Ptr(strings.TrimSpace(f.Description)),
		Importance:  &importance,
	}, nil
}

// ValidateImage checks an uploaded product image.
func ValidateImage(contentType string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxImageSize
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return fmt.Errorf("%w: only images are allowed", ErrInvalidImage)
	}
	if size > maxSize {
		return fmt.Errorf("%w: image must be at most %d bytes", ErrInvalidImage, maxSize)
	}
	return nil
}

// IsDuplicateName reports whether name collides with any card other than
// excludeID. Names are compared after schema.NormalizeName.
func IsDuplicateName(name string, cards []core.Card, excludeID string) bool {
	normalized := schema.NormalizeName(name)
	for _, card := range cards {
		if excludeID != "" && card.ID == excludeID {
			continue
		}
		if schema.NormalizeName(card.Name) == normalized {
			return true
		}
	}
	return false
}

// ValidateCardName checks a card name against the existing cards.
// excludeID names the card being edited, or "" when creating.
func ValidateCardName(name string, cards []core.Card, excludeID string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if IsDuplicateName(name, cards, excludeID) {
		return fmt.Errorf("%w: %q", ErrDuplicateCardName, strings.TrimSpace(name))
	}
	return nil
}
