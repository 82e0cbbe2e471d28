// Package normalize matches user-supplied brand/model text against the
// known catalog vocabulary: canonical exact match first, edit-distance
// fuzzy match second.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum 0-100 similarity ratio for a fuzzy match.
const DefaultThreshold = 70

// Canonicalize lowercases, trims, strips diacritics (NFD decomposition then
// combining-mark removal), drops punctuation and collapses whitespace.
func Canonicalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(strings.TrimSpace(text))

	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// FindClosest returns the original-cased known value best matching input.
// A canonical exact match always wins; otherwise the known value with the
// highest similarity ratio is returned when it reaches the threshold.
// The second return is false when nothing qualifies.
func FindClosest(input string, known []string, threshold int) (string, bool) {
	if input == "" || len(known) == 0 {
		return "", false
	}

	canonical := Canonicalize(input)
	if canonical == "" {
		return "", false
	}

	// Exact case/accent-insensitive match wins over any fuzzy neighbor.
	for _, k := range known {
		if Canonicalize(k) == canonical {
			return k, true
		}
	}

	// Strict > keeps the first-listed value on score ties, so results are
	// stable across runs.
	bestScore := -1
	bestValue := ""
	for _, k := range known {
		score := Ratio(canonical, Canonicalize(k))
		if score > bestScore {
			bestScore = score
			bestValue = k
		}
	}

	if bestScore >= threshold {
		return bestValue, true
	}
	return "", false
}
