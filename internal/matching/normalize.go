package matching

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reParenthetical = regexp.MustCompile(`[(\[{][^)\]}]*[)\]}]`)
	reNonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeName case-folds a medication name, drops parenthetical brand names
// ("Metformin (Glucophage)" -> "metformin"), strips diacritics and collapses punctuation.
func NormalizeName(name string) string {
	s := reParenthetical.ReplaceAllString(name, " ")
	s = foldDiacritics(s)
	s = strings.ToLower(s)
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeDosage makes dosage comparison case-insensitive and whitespace-blind ("500 MG" == "500mg").
func NormalizeDosage(d string) string {
	return strings.ToLower(strings.Join(strings.Fields(d), ""))
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
