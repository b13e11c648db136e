package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainreach/prospect-cli/internal/model"
)

func TestHeuristicAnalyzer_Deterministic(t *testing.T) {
	h := NewHeuristicAnalyzer()
	ctx := context.Background()
	text := "A DeFi protocol with deep liquidity, live on mainnet. DAO governance coming."

	first, err := h.AnalyzeProject(ctx, text, "https://example.xyz", nil)
	require.NoError(t, err)
	second, err := h.AnalyzeProject(ctx, text, "https://example.xyz", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHeuristicAnalyzer_TagsAndStage(t *testing.T) {
	h := NewHeuristicAnalyzer()

	analysis, err := h.AnalyzeProject(context.Background(),
		"A DeFi protocol with deep liquidity, live on mainnet. DAO governance coming.",
		"https://example.xyz", nil)
	require.NoError(t, err)

	// Tags come out in sorted order.
	assert.Equal(t, []string{"dao", "defi"}, analysis.CategoryTags)
	assert.Equal(t, "mainnet", analysis.Stage)
	assert.NotEmpty(t, analysis.BDAngles)
	// base 20 + 2 tags * 10 + live 20 = 60
	assert.Equal(t, 60.0, analysis.MQAScore)
}

func TestHeuristicAnalyzer_ICPKeywordsBoost(t *testing.T) {
	h := NewHeuristicAnalyzer()
	icp := &model.ICPProfile{Keywords: []string{"Liquidity"}}

	with, err := h.AnalyzeProject(context.Background(),
		"liquidity pools", "https://example.xyz", icp)
	require.NoError(t, err)
	without, err := h.AnalyzeProject(context.Background(),
		"liquidity pools", "https://example.xyz", nil)
	require.NoError(t, err)

	assert.Equal(t, without.MQAScore+15, with.MQAScore)
}

func TestHeuristicAnalyzer_EmptyText(t *testing.T) {
	h := NewHeuristicAnalyzer()

	analysis, err := h.AnalyzeProject(context.Background(), "", "https://example.xyz", nil)
	require.NoError(t, err)
	assert.Empty(t, analysis.CategoryTags)
	assert.Equal(t, "idea", analysis.Stage)
	assert.Equal(t, "https://example.xyz", analysis.Summary)
	assert.Equal(t, 20.0, analysis.MQAScore)
}

func TestHeuristicScoreProject_NoICP(t *testing.T) {
	h := NewHeuristicAnalyzer()

	fit, err := h.ScoreProject(context.Background(), &model.Analysis{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, fit.Score)
}

func TestHeuristicScoreProject_Overlap(t *testing.T) {
	h := NewHeuristicAnalyzer()
	analysis := &model.Analysis{
		CategoryTags: []string{"defi", "dao"},
		Stage:        "mainnet",
	}
	icp := &model.ICPProfile{
		TargetCategories: []string{"DeFi"},
		TargetStages:     []string{"mainnet"},
	}

	fit, err := h.ScoreProject(context.Background(), analysis, icp)
	require.NoError(t, err)
	// base 30 + category 20 + stage 15 = 65
	assert.Equal(t, 65.0, fit.Score)
	assert.Contains(t, fit.Explanation, "defi")
}

func TestHeuristicScoreProject_NoOverlap(t *testing.T) {
	h := NewHeuristicAnalyzer()
	fit, err := h.ScoreProject(context.Background(),
		&model.Analysis{CategoryTags: []string{"gaming"}, Stage: "idea"},
		&model.ICPProfile{TargetCategories: []string{"defi"}, TargetStages: []string{"mainnet"}})
	require.NoError(t, err)
	assert.Equal(t, 30.0, fit.Score)
	assert.Equal(t, "no ICP overlap found", fit.Explanation)
}
