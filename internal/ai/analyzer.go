// Package ai analyzes prospect pages, with a live Claude implementation and
// a deterministic heuristic fallback.
package ai

import (
	"context"

	"github.com/chainreach/prospect-cli/internal/model"
)

// Analyzer derives a project analysis and an ICP-fit score from page
// content. Implementations are black boxes; callers must tolerate failure
// and fall back (see Gated).
type Analyzer interface {
	AnalyzeProject(ctx context.Context, text, url string, icp *model.ICPProfile) (*model.Analysis, error)
	ScoreProject(ctx context.Context, analysis *model.Analysis, icp *model.ICPProfile) (*model.FitScore, error)
}

// PlanAllowsLiveAI is the explicit capability check gating live provider
// calls by subscription plan.
func PlanAllowsLiveAI(plan model.Plan) bool {
	switch plan {
	case model.PlanPro, model.PlanGrowth:
		return true
	default:
		return false
	}
}
