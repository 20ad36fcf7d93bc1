package cli

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxSuggestDistance bounds how different a suggestion may be from the input.
const maxSuggestDistance = 3

// ClosestMatch returns the candidate nearest to input by edit distance, ignoring case.
// It returns false when nothing is close enough to be a plausible typo.
func ClosestMatch(input string, candidates []string) (string, bool) {
	needle := []rune(strings.ToLower(strings.TrimSpace(input)))
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings(needle, []rune(strings.ToLower(c)), levenshtein.DefaultOptions)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > maxSuggestDistance {
		return "", false
	}
	return best, true
}
