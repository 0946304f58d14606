package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Scorer returns the similarity of two strings on a 0 to 100 scale
type Scorer func(a, b string) float64

// Ratio is the normalized Levenshtein similarity: 100 * (1 - distance / longest length).
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(longest))
}

// PartialRatio scores the shorter string against every window of the same
// length in the longer one and keeps the best window. It recovers matches where
// one side carries a prefix or suffix the other lacks, e.g. "PED-1001" and "1001".
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(long) == 0 {
		return 100
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return Ratio(a, b)
	}

	s := string(short)
	best := 0.0
	for start := 0; start+len(short) <= len(long); start++ {
		score := Ratio(s, string(long[start:start+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the strings after splitting them on non-alphanumeric
// runes and sorting the tokens, so "12 A" and "a-12" are identical.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// CompositeScorer returns a scorer taking the maximum of the selected measures
func CompositeScorer(set ScorerSet) Scorer {
	var scorers []Scorer
	if set.Ratio {
		scorers = append(scorers, Ratio)
	}
	if set.PartialRatio {
		scorers = append(scorers, PartialRatio)
	}
	if set.TokenSortRatio {
		scorers = append(scorers, TokenSortRatio)
	}

	return func(a, b string) float64 {
		best := 0.0
		for _, score := range scorers {
			if s := score(a, b); s > best {
				best = s
			}
		}
		return best
	}
}

// Score is the composite similarity over all three measures
func Score(a, b string) float64 {
	return CompositeScorer(AllScorers())(a, b)
}

// roundScore keeps two decimals so confidences render and compare stably
func roundScore(score float64) float64 {
	return math.Round(score*100) / 100
}
