// Package fuzzy coerces a free-form worker response into the closest
// member of a fixed option list, falling back to the first option when
// nothing matches well. It is grounded on the original Python
// implementation's difflib.get_close_matches based force_choice helper,
// but case-folds and Unicode-normalizes with golang.org/x/text before
// comparing, since no fuzzy-match library is present anywhere in the
// reference corpus and workers (especially AI ones) routinely return
// answers that differ from the option text in casing or in composed versus
// decomposed accents. Width variants and other compatibility forms are not
// folded (normalization is NFC, not NFKC).
package fuzzy

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var fold = cases.Fold()

// threshold mirrors difflib.get_close_matches' default cutoff (0.6):
// matches scoring below this are treated as "no match".
const threshold = 0.6

// Closest returns the option in options closest to input by normalized
// Levenshtein similarity. If options is empty, it returns "" and false. If
// no option clears threshold, the first option is returned as the
// fallback, matching force_choice's behavior.
func Closest(input string, options []string) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	best := options[0]
	bestScore := -1.0
	for _, opt := range options {
		score := similarity(input, opt)
		if score > bestScore {
			bestScore = score
			best = opt
		}
	}
	if bestScore < threshold {
		return options[0], false
	}
	return best, true
}

// similarity returns a 0..1 score: 1 - (edit distance / max length), after
// case-folding and NFC-normalizing both strings so casing differences and
// composed versus decomposed accents don't inflate the edit distance.
func similarity(a, b string) float64 {
	a = norm.NFC.String(fold.String(a))
	b = norm.NFC.String(fold.String(b))
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
