package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// UnknownColumn is the placeholder identifier returned when a header
// normalizes to the empty string.
const UnknownColumn = "unknown_column"

// NormalizeColumn turns an arbitrary header string into a safe, stable
// column identifier. It is deterministic and idempotent: normalizing an
// already-normalized name returns it unchanged.
//
// Rules: trim whitespace; space, hyphen, dot, slash and comma become
// underscores; parentheses and brackets are stripped; every other
// non-alphanumeric, non-underscore rune is dropped; a leading digit gets a
// "col_" prefix; an empty result becomes UnknownColumn.
func NormalizeColumn(header string) string {
	s := strings.TrimSpace(header)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '/' || r == ',':
			b.WriteByte('_')
		case r == '(' || r == ')' || r == '[' || r == ']':
			// stripped
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}

	clean := b.String()
	if clean == "" {
		return UnknownColumn
	}
	if unicode.IsDigit(rune(clean[0])) {
		return "col_" + clean
	}
	return clean
}

// NormalizeColumns maps NormalizeColumn over headers, preserving order.
func NormalizeColumns(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = NormalizeColumn(h)
	}
	return out
}

// SynthesizeHeader names a blank header cell by its 1-based position.
func SynthesizeHeader(n int) string {
	return fmt.Sprintf("Column_%d", n)
}
