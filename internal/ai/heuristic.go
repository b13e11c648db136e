package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chainreach/prospect-cli/internal/model"
)

// categoryKeywords maps category tags to content keywords. Checked in
// sorted tag order so the derived tags are deterministic.
var categoryKeywords = map[string][]string{
	"dao":            {"dao", "governance", "voting", "proposal"},
	"defi":           {"defi", "liquidity", "lending", "yield", "amm", "swap", "staking"},
	"gaming":         {"game", "gaming", "play-to-earn", "metaverse"},
	"infrastructure": {"node", "rpc", "indexer", "oracle", "rollup", "validator", "sdk"},
	"nft":            {"nft", "collectible", "mint", "marketplace"},
	"wallet":         {"wallet", "custody", "key management", "signer"},
}

var stageKeywords = []struct {
	stage    string
	keywords []string
}{
	{"mainnet", []string{"mainnet", "live on", "launched"}},
	{"testnet", []string{"testnet", "beta", "coming soon", "waitlist"}},
	{"growth", []string{"series a", "series b", "million users", "tvl"}},
}

// HeuristicAnalyzer is the deterministic fallback used when the live
// provider fails or the user's plan disallows live AI calls. Same inputs
// always produce the same analysis.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer creates the fallback analyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

// AnalyzeProject derives tags, stage, and an MQA score from keyword
// occurrence counts in the page text.
func (h *HeuristicAnalyzer) AnalyzeProject(_ context.Context, text, url string, icp *model.ICPProfile) (*model.Analysis, error) {
	lower := strings.ToLower(text)

	tags := make([]string, 0, 4)
	for _, tag := range sortedTags() {
		for _, kw := range categoryKeywords[tag] {
			if strings.Contains(lower, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}

	stage := "idea"
	for _, sk := range stageKeywords {
		if containsAny(lower, sk.keywords...) {
			stage = sk.stage
			break
		}
	}

	score := 20.0
	reasons := []string{"heuristic analysis (live AI unavailable)"}
	if len(tags) > 0 {
		score += float64(len(tags)) * 10
		reasons = append(reasons, fmt.Sprintf("matched categories: %s", strings.Join(tags, ", ")))
	}
	if stage == "mainnet" || stage == "growth" {
		score += 20
		reasons = append(reasons, "project appears live")
	}
	if icp != nil && containsAny(lower, lowered(icp.Keywords)...) {
		score += 15
		reasons = append(reasons, "page mentions ICP keywords")
	}

	var angles []string
	for _, tag := range tags {
		angles = append(angles, fmt.Sprintf("open with their %s positioning", tag))
		if len(angles) == 3 {
			break
		}
	}

	return &model.Analysis{
		Summary:      summarize(text, url),
		CategoryTags: tags,
		Stage:        stage,
		TargetUsers:  "",
		PainPoints:   nil,
		BDAngles:     angles,
		MQAScore:     clamp(score, 0, 100),
		MQAReasons:   reasons,
	}, nil
}

// ScoreProject computes ICP fit from tag and stage overlap.
func (h *HeuristicAnalyzer) ScoreProject(_ context.Context, analysis *model.Analysis, icp *model.ICPProfile) (*model.FitScore, error) {
	if icp == nil {
		return &model.FitScore{Score: 50, Explanation: "no ICP profile configured"}, nil
	}

	score := 30.0
	var hits []string
	for _, tag := range analysis.CategoryTags {
		for _, want := range icp.TargetCategories {
			if strings.EqualFold(tag, want) {
				score += 20
				hits = append(hits, tag)
			}
		}
	}
	for _, want := range icp.TargetStages {
		if strings.EqualFold(analysis.Stage, want) {
			score += 15
			hits = append(hits, "stage:"+analysis.Stage)
		}
	}

	explanation := "no ICP overlap found"
	if len(hits) > 0 {
		explanation = "overlaps ICP on " + strings.Join(hits, ", ")
	}
	return &model.FitScore{Score: clamp(score, 0, 100), Explanation: explanation}, nil
}

func sortedTags() []string {
	tags := make([]string, 0, len(categoryKeywords))
	for tag := range categoryKeywords {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func summarize(text, url string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return url
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowered(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
