package idmgmt

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Peňažní" -> "Penazni").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel normalizes a detector class label for comparison
// (case folded, no diacritics, dashes and underscores as single spaces).
func NormalizeLabel(label string) string {
	label = RemoveDiacritics(label)
	label = cases.Fold().String(label)
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
