// Package scorer turns a project analysis into a lead score with ranked
// reasons and playbook matches.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chainreach/prospect-cli/internal/model"
)

// Signal strength buckets for the final lead score.
const (
	SignalStrong   = "strong"
	SignalModerate = "moderate"
	SignalWeak     = "weak"
)

// maxReasons bounds how many justifications are surfaced to the user.
const maxReasons = 3

// Input carries everything the lead scorer combines.
type Input struct {
	Analysis   *model.Analysis
	ICP        *model.ICPProfile
	Fit        *model.FitScore
	Playbooks  []model.Playbook
	SourceType model.SourceType
	RawContext string
}

// Result is the scorer's verdict.
type Result struct {
	LeadScore       float64
	LeadReasons     []string
	SignalStrength  string
	PlaybookMatches []string
}

// reason pairs a justification with the weight used to rank it.
type reason struct {
	text   string
	weight float64
}

// Score combines the analysis, ICP fit, playbooks, and source context into
// a bounded 0-100 lead score. Deterministic for identical inputs; reasons
// are ordered most-to-least important and capped at three.
func Score(in Input) Result {
	if in.Analysis == nil {
		return Result{SignalStrength: SignalWeak}
	}

	var reasons []reason
	score := 0.0

	// MQA qualification carries the most weight.
	mqa := clamp(in.Analysis.MQAScore, 0, 100)
	score += mqa * 0.4
	if mqa >= 60 {
		reasons = append(reasons, reason{
			text:   fmt.Sprintf("strong qualification score (%.0f)", mqa),
			weight: mqa * 0.4,
		})
	}

	// ICP fit.
	if in.Fit != nil {
		fit := clamp(in.Fit.Score, 0, 100)
		score += fit * 0.3
		if fit >= 50 {
			text := fmt.Sprintf("good ICP fit (%.0f)", fit)
			if in.Fit.Explanation != "" {
				text = fmt.Sprintf("good ICP fit (%.0f): %s", fit, in.Fit.Explanation)
			}
			reasons = append(reasons, reason{text: text, weight: fit * 0.3})
		}
	}

	// Concrete BD angles mean there is something to say.
	if n := len(in.Analysis.BDAngles); n > 0 {
		pts := math.Min(float64(n)*4, 12)
		score += pts
		reasons = append(reasons, reason{
			text:   fmt.Sprintf("%d concrete BD angle(s) identified", n),
			weight: pts,
		})
	}

	// Playbook matches.
	matches := MatchPlaybooks(in.Analysis, in.Playbooks)
	if len(matches) > 0 {
		pts := math.Min(float64(len(matches))*8, 16)
		score += pts
		reasons = append(reasons, reason{
			text:   "matches playbook: " + strings.Join(matches, ", "),
			weight: pts,
		})
	}

	// Source context: curated sources beat cold text scans.
	switch in.SourceType {
	case model.SourceWatchlist:
		score += 8
		reasons = append(reasons, reason{text: "surfaced from your watchlist", weight: 8})
	case model.SourcePageScan:
		score += 4
	}
	if in.RawContext != "" && in.ICP != nil &&
		containsAnyFold(in.RawContext, in.ICP.Keywords) {
		score += 5
		reasons = append(reasons, reason{text: "scan context mentions ICP keywords", weight: 5})
	}

	score = clamp(score, 0, 100)

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].weight > reasons[j].weight
	})
	texts := make([]string, 0, maxReasons)
	for _, r := range reasons {
		texts = append(texts, r.text)
		if len(texts) == maxReasons {
			break
		}
	}

	return Result{
		LeadScore:       math.Round(score*100) / 100,
		LeadReasons:     texts,
		SignalStrength:  signalFor(score),
		PlaybookMatches: matches,
	}
}

// MatchPlaybooks returns the keys of playbooks whose trigger conditions are
// satisfied by the analysis: any trigger tag present in the category tags,
// or any trigger stage equal to the analysis stage. A playbook with no
// triggers never matches.
func MatchPlaybooks(analysis *model.Analysis, playbooks []model.Playbook) []string {
	var matches []string
	for _, pb := range playbooks {
		if matchesPlaybook(analysis, pb) {
			matches = append(matches, pb.Key)
		}
	}
	return matches
}

func matchesPlaybook(analysis *model.Analysis, pb model.Playbook) bool {
	for _, tag := range pb.TriggerTags {
		for _, have := range analysis.CategoryTags {
			if strings.EqualFold(tag, have) {
				return true
			}
		}
	}
	for _, stage := range pb.TriggerStages {
		if strings.EqualFold(stage, analysis.Stage) {
			return true
		}
	}
	return false
}

func signalFor(score float64) string {
	switch {
	case score >= 70:
		return SignalStrong
	case score >= 40:
		return SignalModerate
	default:
		return SignalWeak
	}
}

func containsAnyFold(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
