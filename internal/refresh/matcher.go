package refresh

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity ratio for a fuzzy suggestion.
const DefaultCutoff = 0.4

// Similarity returns the Ratcliff/Obershelp ratio of a and b in [0, 1],
// compared rune by rune and ignoring case.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

// ClosestMatch returns the candidate most similar to word whose ratio is at
// least cutoff. Ties go to the lexically greater candidate so the choice does
// not depend on input order.
func ClosestMatch(word string, candidates []string, cutoff float64) (string, bool) {
	m := difflib.NewMatcher(nil, runes(word))

	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		m.SetSeq1(runes(c))
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		score := m.Ratio()
		if score < cutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && c > best) {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}

func runes(s string) []string {
	return strings.Split(strings.ToLower(s), "")
}
