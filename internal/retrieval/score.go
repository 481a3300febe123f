package retrieval

import (
	"math"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = struct{}{}
	}
	return set
}

// RankScore is the rank-decay term for a 0-indexed web result.
func RankScore(rank int) float64 {
	return math.Max(0.5, 0.9-0.05*float64(rank))
}

// Overlap is the fraction of distinct query tokens present in snippet.
func Overlap(query, snippet string) float64 {
	q := tokenSet(query)
	if len(q) == 0 {
		return 0
	}
	s := tokenSet(snippet)
	n := 0
	for w := range q {
		if _, ok := s[w]; ok {
			n++
		}
	}
	return float64(n) / float64(len(q))
}

// Confidence scores a web snippet at rank r: 70% rank decay, 30% lexical
// overlap with the query, rounded to two decimals. A query without word
// tokens scores on rank alone.
func Confidence(query, snippet string, rank int) float64 {
	rs := RankScore(rank)
	if len(tokenSet(query)) == 0 {
		return round2(rs)
	}
	return round2(0.7*rs + 0.3*Overlap(query, snippet))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
