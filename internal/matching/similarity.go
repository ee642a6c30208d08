package matching

import (
	"strings"

	"github.com/agext/levenshtein"
)

// Scorer returns a similarity in [0,1] between two normalized names.
type Scorer func(a, b string) float64

// DefaultScorer takes the better of an edit-distance similarity (with a Winkler
// prefix bonus) and token overlap, so "insulin glargine" still scores against "glargine insulin".
func DefaultScorer(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return max(levenshtein.Match(a, b, nil), tokenOverlap(a, b))
}

// EditDistance is the Levenshtein distance between two normalized names.
func EditDistance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// tokenOverlap is the Jaccard index of the two names' word sets.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(s) {
		out[f] = struct{}{}
	}
	return out
}
