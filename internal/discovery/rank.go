package discovery

import (
	"sort"
	"strings"
)

// projectKeywords are substrings associated with Web3 project URLs.
// A candidate containing any of them scores +3.
var projectKeywords = []string{
	"project", "app", "dao", "protocol", "labs", "xyz", "finance",
	"defi", "nft", "token", "chain", "swap", "bridge", "vault",
	"stake", "yield", "lend",
}

const (
	externalHostPoints = 2
	keywordPoints      = 3
)

// ScoreCandidate computes the heuristic rank score for one candidate URL:
// +2 when its host differs from the source host, +3 when the URL contains
// any project keyword (case-insensitive).
func ScoreCandidate(candidate, sourceHost string) int {
	score := 0
	if h := Host(candidate); h != "" && h != strings.ToLower(sourceHost) {
		score += externalHostPoints
	}
	lower := strings.ToLower(candidate)
	for _, kw := range projectKeywords {
		if strings.Contains(lower, kw) {
			score += keywordPoints
			break
		}
	}
	return score
}

// RankCandidates orders candidates by descending heuristic score. Ties keep
// relative input order. The input slice is not mutated.
func RankCandidates(candidates []string, sourceHost string) []string {
	out := make([]string, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return ScoreCandidate(out[i], sourceHost) > ScoreCandidate(out[j], sourceHost)
	})
	return out
}
