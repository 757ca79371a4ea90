package terminology

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTerm is the comparison form of a clinical term: NFC, single spaces, lower case.
// Accents are kept.
func NormalizeTerm(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Lower(language.BrazilianPortuguese).String(s)
}

// FoldTerm additionally strips diacritics, for locating terms in free text.
func FoldTerm(s string) string {
	normalized := NormalizeTerm(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, normalized)
	if err != nil {
		return normalized
	}
	return out
}

// ContainsTerm reports whether term occurs in text, ignoring case, accents and spacing.
func ContainsTerm(text, term string) bool {
	needle := FoldTerm(term)
	if needle == "" {
		return false
	}
	return strings.Contains(FoldTerm(text), needle)
}
