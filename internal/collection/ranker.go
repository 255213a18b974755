package collection

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Match is one ranked corpus entry.
type Match struct {
	Index int
	Score int
}

// Ranker orders a corpus by fuzzy relevance to query. Entries that do not
// match at all are omitted.
type Ranker interface {
	Rank(query string, corpus []string) []Match
}

// SubsequenceRanker matches when every query rune appears in order in the
// candidate, case-insensitively. Consecutive runs and matches at word starts
// score higher.
type SubsequenceRanker struct{}

// Rank implements Ranker.
func (SubsequenceRanker) Rank(query string, corpus []string) []Match {
	q := []rune(strings.ToLower(query))
	var out []Match
	for i, cand := range corpus {
		if s, ok := subsequenceScore(q, []rune(strings.ToLower(cand))); ok {
			out = append(out, Match{Index: i, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return utf8.RuneCountInString(corpus[out[a].Index]) < utf8.RuneCountInString(corpus[out[b].Index])
	})
	return out
}

func subsequenceScore(q, cand []rune) (int, bool) {
	if len(q) == 0 {
		return 0, true
	}
	score, qi, run := 0, 0, 0
	for ci := 0; ci < len(cand) && qi < len(q); ci++ {
		if cand[ci] != q[qi] {
			run = 0
			continue
		}
		run++
		score += run
		if ci == 0 || strings.ContainsRune("/ -_.", cand[ci-1]) {
			score += 3
		}
		qi++
	}
	if qi < len(q) {
		return 0, false
	}
	return score, true
}
