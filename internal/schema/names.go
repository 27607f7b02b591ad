package schema

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TablePrefix is prepended to every sanitized table name.
const TablePrefix = "tabela_"

// maxTableNameLen caps the sanitized part of a table name, before the prefix.
const maxTableNameLen = 55

// combiningDiacriticals is the U+0300..U+036F block stripped after decomposition.
var combiningDiacriticals = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// stripMarks decomposes s (NFD) and drops the combining diacritical marks.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacriticals)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName folds a card name for duplicate detection: lower-cased,
// trimmed, decomposed, with combining marks stripped. "Café" and "cafe "
// normalize to the same value.
func NormalizeName(name string) string {
	return stripMarks(strings.TrimSpace(strings.ToLower(name)))
}

// SameName reports whether two card names collide after normalization.
func SameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// SanitizeTableName derives the per-card table name stored on products.
func SanitizeTableName(cardName string) string {
	s := stripMarks(strings.ToLower(cardName))
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.TrimPrefix(s, "_")
	s = strings.TrimSuffix(s, "_")
	if len(s) > maxTableNameLen {
		s = s[:maxTableNameLen]
	}
	return TablePrefix + s
}
