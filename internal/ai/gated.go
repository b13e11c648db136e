package ai

import (
	"context"

	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/model"
)

// Gated routes between the live analyzer and the heuristic fallback: the
// fallback is used whenever the plan disallows live AI, the live analyzer is
// absent, or a live call fails. User-facing flows never hard-fail because
// the provider is down.
type Gated struct {
	live     Analyzer
	fallback Analyzer
	plan     model.Plan
}

// NewGated creates a plan-gated analyzer. live may be nil (no API key).
func NewGated(live, fallback Analyzer, plan model.Plan) *Gated {
	return &Gated{live: live, fallback: fallback, plan: plan}
}

func (g *Gated) AnalyzeProject(ctx context.Context, text, url string, icp *model.ICPProfile) (*model.Analysis, error) {
	if g.live != nil && PlanAllowsLiveAI(g.plan) {
		analysis, err := g.live.AnalyzeProject(ctx, text, url, icp)
		if err == nil {
			return analysis, nil
		}
		zap.L().Warn("ai: live analysis failed, using heuristic fallback",
			zap.String("url", url),
			zap.Error(err),
		)
	}
	return g.fallback.AnalyzeProject(ctx, text, url, icp)
}

func (g *Gated) ScoreProject(ctx context.Context, analysis *model.Analysis, icp *model.ICPProfile) (*model.FitScore, error) {
	if g.live != nil && PlanAllowsLiveAI(g.plan) {
		fit, err := g.live.ScoreProject(ctx, analysis, icp)
		if err == nil {
			return fit, nil
		}
		zap.L().Warn("ai: live fit scoring failed, using heuristic fallback", zap.Error(err))
	}
	return g.fallback.ScoreProject(ctx, analysis, icp)
}
