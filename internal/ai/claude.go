package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/pkg/claude"
)

// maxPageChars is the truncation limit for page text sent to Claude.
const maxPageChars = 16000

// analyzePrompt asks for the structured project analysis.
const analyzePrompt = `You are analyzing a Web3 project's website for business development prospecting. From the page content, produce a concise analysis.

Respond with ONLY valid JSON, no other text:
{"summary": "", "category_tags": [], "stage": "", "target_users": "", "pain_points": [], "bd_angles": [], "mqa_score": 0, "mqa_reasons": []}

- category_tags: lowercase tags like "defi", "nft", "infrastructure", "dao"
- stage: one of "idea", "testnet", "mainnet", "growth", "established"
- mqa_score: 0-100 qualification score for fit and readiness
- bd_angles: up to 3 concrete angles for opening a conversation`

// fitPrompt asks for an ICP-fit verdict on a prior analysis.
const fitPrompt = `You are scoring how well an analyzed Web3 project fits an ideal customer profile. Compare the analysis to the profile and respond with ONLY valid JSON, no other text:
{"score": 0, "explanation": ""}

- score: 0-100 fit score`

// ClaudeAnalyzer implements Analyzer over the live Anthropic API.
type ClaudeAnalyzer struct {
	ai    claude.Client
	model string
}

// NewClaudeAnalyzer creates a live analyzer using the given model.
func NewClaudeAnalyzer(ai claude.Client, model string) *ClaudeAnalyzer {
	return &ClaudeAnalyzer{ai: ai, model: model}
}

// AnalyzeProject sends the page text to Claude and parses the analysis.
func (a *ClaudeAnalyzer) AnalyzeProject(ctx context.Context, text, url string, icp *model.ICPProfile) (*model.Analysis, error) {
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}

	userMsg := fmt.Sprintf("Project URL: %s\n%s\nPage content:\n%s", url, icpContext(icp), text)

	raw, err := a.complete(ctx, analyzePrompt, userMsg, 1024)
	if err != nil {
		return nil, err
	}

	var analysis model.Analysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, eris.Wrap(err, "ai: parse analysis JSON")
	}
	analysis.MQAScore = clamp(analysis.MQAScore, 0, 100)
	return &analysis, nil
}

// ScoreProject asks Claude for an ICP-fit score of a prior analysis.
func (a *ClaudeAnalyzer) ScoreProject(ctx context.Context, analysis *model.Analysis, icp *model.ICPProfile) (*model.FitScore, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, eris.Wrap(err, "ai: marshal analysis")
	}

	userMsg := fmt.Sprintf("%s\nProject analysis:\n%s", icpContext(icp), analysisJSON)

	raw, err := a.complete(ctx, fitPrompt, userMsg, 512)
	if err != nil {
		return nil, err
	}

	var fit model.FitScore
	if err := json.Unmarshal(raw, &fit); err != nil {
		return nil, eris.Wrap(err, "ai: parse fit JSON")
	}
	fit.Score = clamp(fit.Score, 0, 100)
	return &fit, nil
}

// complete runs one message round-trip and returns the embedded JSON bytes.
func (a *ClaudeAnalyzer) complete(ctx context.Context, system, userMsg string, maxTokens int64) ([]byte, error) {
	resp, err := a.ai.CreateMessage(ctx, claude.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []claude.Message{{Role: "user", Content: userMsg}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ai: claude request")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, eris.New("ai: empty claude response")
	}

	// Find JSON in the response (it may have surrounding text).
	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart < 0 || jsonEnd < 0 || jsonEnd <= jsonStart {
		return nil, eris.Errorf("ai: no JSON in response: %s", text)
	}

	return []byte(text[jsonStart : jsonEnd+1]), nil
}

func icpContext(icp *model.ICPProfile) string {
	if icp == nil {
		return "No ideal customer profile is configured."
	}
	return fmt.Sprintf(
		"Ideal customer profile: categories=%s stages=%s keywords=%s notes=%s",
		strings.Join(icp.TargetCategories, ","),
		strings.Join(icp.TargetStages, ","),
		strings.Join(icp.Keywords, ","),
		icp.Notes,
	)
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
