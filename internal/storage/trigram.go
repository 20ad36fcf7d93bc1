package storage

import (
	"strings"
	"unicode"
)

// TrigramSimilarity scores two strings the way PostgreSQL's pg_trgm similarity() does:
// both strings are lowercased and split into alphanumeric words, each word is padded
// with two leading spaces and one trailing space, and the score is the size of the
// shared trigram set divided by the size of the union. Result is in [0, 1].
func TrigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}

	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// trigrams returns the set of padded word trigrams in s.
func trigrams(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}
