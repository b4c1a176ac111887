// Package similarity provides the string comparison primitives used for name
// matching: Jaro-Winkler, Levenshtein, and a token-aware name comparison built
// on top of them.
package similarity

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/normalize"
)

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match).
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := Jaro(a, b)

	// Winkler modification: boost for common prefix
	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Levenshtein returns a similarity score between 0.0 and 1.0 derived from the
// edit distance between two strings
func Levenshtein(a, b string) float64 {
	distance := LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Name compares two display names. Both are normalized first. The score is the
// better of whole-string Jaro-Winkler and an order-insensitive token pairing,
// so "Doe, Jane" and "Jane Doe" still compare high.
func Name(a, b string) float64 {
	na := normalize.Name(a)
	nb := normalize.Name(b)
	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	whole := JaroWinkler(na, nb)
	tokens := tokenPairScore(strings.Fields(na), strings.Fields(nb))
	if tokens > whole {
		return tokens
	}
	return whole
}

// tokenPairScore greedily pairs each token of the shorter name with its best
// match in the other and averages the pair scores
func tokenPairScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	used := make([]bool, len(b))
	var total float64
	for _, tok := range a {
		best := -1
		bestScore := 0.0
		for j, other := range b {
			if used[j] {
				continue
			}
			score := JaroWinkler(tok, other)
			if score > bestScore {
				bestScore = score
				best = j
			}
		}
		if best >= 0 {
			used[best] = true
		}
		total += bestScore
	}

	// Unpaired extra tokens dilute the score slightly.
	return total / float64(len(a)) * (float64(len(a)) / float64(len(b)) * 0.3 + 0.7)
}
