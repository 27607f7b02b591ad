package schema

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/shopspring/decimal"
)

const (
	// CardsTable holds card records.
	CardsTable = "cards"

	// ProductsTable holds product records for every card.
	ProductsTable = "tabelas_card"
)

// CardColumns is the column list every card query selects, in scan order.
var CardColumns = []string{
	"id", "name", "description", "image_url",
	"quantidade_produtos", "valor_total", "frete", "created_at",
}

// ProductColumns is the column list every product query selects, in scan order.
var ProductColumns = []string{
	"id", "id_card", "nome_card", "nome_produto", "preco", "imagem", "link",
	"categoria", "descricao", "importancia", "ordem", "tabela_personalizada",
}

// SelectList joins a column list for a SELECT clause.
func SelectList(columns []string) string {
	return strings.Join(columns, ", ")
}

// ScanCard reads one card row selected with CardColumns.
func ScanCard(rows core.Rows) (core.Card, error) {
	var (
		card        core.Card
		description sql.NullString
		imageURL    sql.NullString
		total       decimal.NullDecimal
		shipping    decimal.NullDecimal
		createdAt   timeValue
	)
	if err := rows.Scan(&card.ID, &card.Name, &description, &imageURL,
		&card.ProductCount, &total, &shipping, &createdAt); err != nil {
		return core.Card{}, fmt.Errorf("failed to scan card: %w", err)
	}
	card.Description = description.String
	card.ImageURL = imageURL.String
	card.TotalValue = total.Decimal
	card.Shipping = shipping.Decimal
	card.CreatedAt = createdAt.Time
	return card, nil
}

// ScanProduct reads one product row selected with ProductColumns.
func ScanProduct(rows core.Rows) (core.Product, error) {
	var (
		p           core.Product
		cardName    sql.NullString
		image       sql.NullString
		link        sql.NullString
		category    sql.NullString
		description sql.NullString
		importance  sql.NullInt64
		order       sql.NullInt64
		tableName   sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.CardID, &cardName, &p.Name, &p.Price, &image, &link,
		&category, &description, &importance, &order, &tableName); err != nil {
		return core.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CardName = cardName.String
	p.Image = image.String
	p.Link = link.String
	p.Category = category.String
	p.Description = description.String
	if importance.Valid {
		p.Importance = core.ImportanceFromNumber(importance.Int64)
	}
	p.Order = int(order.Int64)
	p.TableName = tableName.String
	return p, nil
}

// Nullable maps "" to SQL NULL.
func Nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ImportanceValue maps an importance level to its stored number, or NULL.
func ImportanceValue(i core.Importance) interface{} {
	if !i.Valid() {
		return nil
	}
	return int64(i)
}

// ProductAssignments turns a partial product write into SET assignments and
// their arguments. Column order is fixed so generated statements are stable.
func ProductAssignments(fields core.ProductFields) ([]string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if fields.Name != nil {
		add("nome_produto", *fields.Name)
	}
	if fields.Price != nil {
		add("preco", fields.Price.StringFixed(2))
	}
	if fields.Image != nil {
		add("imagem", Nullable(*fields.Image))
	}
	if fields.Link != nil {
		add("link", Nullable(*fields.Link))
	}
	if fields.Category != nil {
		add("categoria", Nullable(*fields.Category))
	}
	if fields.Description != nil {
		add("descricao", Nullable(*fields.Description))
	}
	if fields.Importance != nil {
		add("importancia", ImportanceValue(*fields.Importance))
	}
	if fields.Order != nil {
		add("ordem", *fields.Order)
	}
	return sets, args
}

// CardAssignments turns a partial card write into SET assignments and their arguments.
func CardAssignments(fields core.CardFields) ([]string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	if fields.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*fields.Name))
	}
	if fields.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, Nullable(strings.TrimSpace(*fields.Description)))
	}
	if fields.ImageURL != nil {
		sets = append(sets, "image_url = ?")
		args = append(args, Nullable(strings.TrimSpace(*fields.ImageURL)))
	}
	return sets, args
}

// timeValue scans timestamps from drivers that return time.Time, text or unix seconds.
type timeValue struct {
	Time time.Time
}

var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (t *timeValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot convert %T to time.Time", src)
	}
}

func (t *timeValue) parse(s string) error {
	for _, format := range timeFormats {
		if parsed, err := time.Parse(format, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cannot parse time string: %s", s)
}
