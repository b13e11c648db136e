// Package opportunity orchestrates lead discovery: scanning sources for
// candidate URLs, enriching them into scored opportunities, and converting
// accepted ones into pipeline projects.
package opportunity

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainreach/prospect-cli/internal/ai"
	"github.com/chainreach/prospect-cli/internal/discovery"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/scorer"
	"github.com/chainreach/prospect-cli/internal/store"
)

// rawContextCap bounds how much scan input is stored per opportunity.
const rawContextCap = 2000

// ScanResult summarizes one scan batch.
type ScanResult struct {
	Created []model.Opportunity `json:"created"`
	Skipped int                 `json:"skipped"`
	Failed  int                 `json:"failed"`
}

// Orchestrator wires the store, fetcher, analyzer, and scorer into the
// discovery flows.
type Orchestrator struct {
	store          store.Store
	fetcher        discovery.PageFetcher
	analyzer       ai.Analyzer
	scanner        *discovery.Scanner
	playbooks      []model.Playbook
	maxCandidates  int
	watchlistLimit int
}

// Options configures an Orchestrator.
type Options struct {
	MaxCandidates  int
	WatchlistLimit int
}

func NewOrchestrator(st store.Store, f discovery.PageFetcher, analyzer ai.Analyzer, scanner *discovery.Scanner, playbooks []model.Playbook, opts Options) *Orchestrator {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 10
	}
	if opts.WatchlistLimit <= 0 {
		opts.WatchlistLimit = 20
	}
	return &Orchestrator{
		store:          st,
		fetcher:        f,
		analyzer:       analyzer,
		scanner:        scanner,
		playbooks:      playbooks,
		maxCandidates:  opts.MaxCandidates,
		watchlistLimit: opts.WatchlistLimit,
	}
}

// ScanText extracts URLs from free text (notes, chat logs, feeds) and creates
// opportunities for the new ones.
func (o *Orchestrator) ScanText(ctx context.Context, userID, text, label string) (*ScanResult, error) {
	urls := discovery.ExtractFromText(text)
	return o.createFromURLs(ctx, userID, urls, model.SourceTextScan, label, truncate(text, rawContextCap)), nil
}

// ScanPage fetches a page, extracts and ranks candidate project URLs, and
// creates opportunities for the new ones.
func (o *Orchestrator) ScanPage(ctx context.Context, userID, sourceURL, label string) (*ScanResult, error) {
	candidates := o.scanner.FromPage(ctx, sourceURL)
	if candidates == nil {
		return nil, eris.Errorf("opportunity: invalid source url %s", sourceURL)
	}
	return o.createFromURLs(ctx, userID, candidates, model.SourcePageScan, label, sourceURL), nil
}

// ScanWatchlist scans every watchlist entry. Entries settle independently: a
// failing entry is counted, never aborts the batch.
func (o *Orchestrator) ScanWatchlist(ctx context.Context, userID string) (*ScanResult, error) {
	entries, err := o.store.ListWatchlist(ctx, userID)
	if err != nil {
		return nil, eris.Wrap(err, "opportunity: list watchlist")
	}
	if len(entries) > o.watchlistLimit {
		entries = entries[:o.watchlistLimit]
	}

	var (
		mu    sync.Mutex
		total ScanResult
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for _, entry := range entries {
		g.Go(func() error {
			candidates := o.scanner.FromPage(gCtx, entry.URL)
			if candidates == nil {
				mu.Lock()
				total.Failed++
				mu.Unlock()
				return nil
			}
			res := o.createFromURLs(gCtx, userID, candidates, model.SourceWatchlist, entry.Label, entry.URL)
			mu.Lock()
			total.Created = append(total.Created, res.Created...)
			total.Skipped += res.Skipped
			total.Failed += res.Failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return &total, nil
}

// createFromURLs turns candidate URLs into opportunities. URLs already known
// as opportunities or projects are skipped; a URL whose enrichment fails
// still gets a minimal row. Stops after maxCandidates creations.
func (o *Orchestrator) createFromURLs(ctx context.Context, userID string, urls []string, source model.SourceType, label, rawContext string) *ScanResult {
	res := &ScanResult{}
	seen := make(map[string]struct{}, len(urls))
	icp := o.icpProfile(ctx, userID)

	for _, raw := range urls {
		if len(res.Created) >= o.maxCandidates {
			break
		}

		normalized, err := discovery.Normalize(raw)
		if err != nil {
			res.Failed++
			continue
		}
		if _, dup := seen[normalized]; dup {
			res.Skipped++
			continue
		}
		seen[normalized] = struct{}{}

		if o.alreadyKnown(ctx, userID, normalized) {
			res.Skipped++
			continue
		}

		opp := o.enrich(ctx, model.Opportunity{
			UserID:      userID,
			URL:         normalized,
			SourceType:  source,
			SourceLabel: label,
			RawContext:  rawContext,
			Status:      model.OpportunityNew,
		}, icp)

		created, err := o.store.CreateOpportunity(ctx, *opp)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				res.Skipped++
				continue
			}
			zap.L().Error("opportunity: create failed",
				zap.String("url", normalized),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Created = append(res.Created, *created)
	}
	return res
}

func (o *Orchestrator) alreadyKnown(ctx context.Context, userID, url string) bool {
	if _, err := o.store.FindOpportunityByURL(ctx, userID, url); err == nil {
		return true
	}
	if _, err := o.store.FindProjectByURL(ctx, userID, url); err == nil {
		return true
	}
	return false
}

// enrich fetches and analyzes the URL and fills the derived fields. Any
// failure degrades to a minimal row titled with the URL; the lead is kept
// either way.
func (o *Orchestrator) enrich(ctx context.Context, opp model.Opportunity, icp *model.ICPProfile) *model.Opportunity {
	opp.Title = opp.URL

	page, err := o.fetcher.Fetch(ctx, opp.URL)
	if err != nil {
		zap.L().Warn("opportunity: fetch failed, keeping minimal row",
			zap.String("url", opp.URL),
			zap.Error(err),
		)
		return &opp
	}
	if page.Title != "" {
		opp.Title = page.Title
	}

	analysis, err := o.analyzer.AnalyzeProject(ctx, page.Text, opp.URL, icp)
	if err != nil {
		zap.L().Warn("opportunity: analysis failed, keeping minimal row",
			zap.String("url", opp.URL),
			zap.Error(err),
		)
		return &opp
	}
	fit, err := o.analyzer.ScoreProject(ctx, analysis, icp)
	if err != nil {
		zap.L().Warn("opportunity: fit scoring failed", zap.String("url", opp.URL), zap.Error(err))
		fit = nil
	}

	applyDerived(&opp, analysis, fit, scorer.Score(scorer.Input{
		Analysis:   analysis,
		ICP:        icp,
		Fit:        fit,
		Playbooks:  o.playbooks,
		SourceType: opp.SourceType,
		RawContext: opp.RawContext,
	}))
	return &opp
}

// applyDerived overwrites only the analysis-derived fields.
func applyDerived(opp *model.Opportunity, analysis *model.Analysis, fit *model.FitScore, lead scorer.Result) {
	opp.Tags = analysis.CategoryTags
	opp.BDAngles = analysis.BDAngles
	mqa := analysis.MQAScore
	opp.MQAScore = &mqa
	if fit != nil {
		icpScore := fit.Score
		opp.ICPScore = &icpScore
	}
	leadScore := lead.LeadScore
	opp.LeadScore = &leadScore
	opp.LeadReasons = lead.LeadReasons
	opp.SignalStrength = lead.SignalStrength
	opp.PlaybookMatches = lead.PlaybookMatches
}

func (o *Orchestrator) icpProfile(ctx context.Context, userID string) *model.ICPProfile {
	icp, err := o.store.GetICPProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("opportunity: icp profile lookup failed", zap.Error(err))
		}
		return nil
	}
	return icp
}

// Convert promotes an opportunity into a pipeline project. Idempotent: a
// CONVERTED opportunity returns its linked project. If a project with the
// same URL already exists, the opportunity is linked to it instead of
// creating a duplicate.
func (o *Orchestrator) Convert(ctx context.Context, userID, opportunityID string) (*model.Project, error) {
	opp, err := o.store.GetOpportunity(ctx, userID, opportunityID)
	if err != nil {
		return nil, eris.Wrap(err, "opportunity: get for convert")
	}

	if opp.Status == model.OpportunityConverted && opp.ProjectID != "" {
		return o.store.GetProject(ctx, userID, opp.ProjectID)
	}

	project, err := o.store.FindProjectByURL(ctx, userID, opp.URL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrap(err, "opportunity: project lookup")
		}
		project, err = o.store.CreateProject(ctx, projectFromOpportunity(opp))
		if err != nil {
			return nil, eris.Wrap(err, "opportunity: create project")
		}
	}

	opp.Status = model.OpportunityConverted
	opp.ProjectID = project.ID
	if err := o.store.UpdateOpportunity(ctx, *opp); err != nil {
		return nil, eris.Wrap(err, "opportunity: mark converted")
	}
	return project, nil
}

func projectFromOpportunity(opp *model.Opportunity) model.Project {
	name := opp.Title
	if name == "" {
		name = opp.URL
	}
	return model.Project{
		UserID:          opp.UserID,
		URL:             opp.URL,
		Name:            name,
		Status:          model.ProjectNotContacted,
		CategoryTags:    opp.Tags,
		BDAngles:        opp.BDAngles,
		ICPScore:        opp.ICPScore,
		MQAScore:        opp.MQAScore,
		PlaybookMatches: opp.PlaybookMatches,
	}
}

// Enrich refetches and reanalyzes an opportunity, overwriting derived fields
// only. Review state (status, project link) is untouched.
func (o *Orchestrator) Enrich(ctx context.Context, userID, opportunityID string) (*model.Opportunity, error) {
	opp, err := o.store.GetOpportunity(ctx, userID, opportunityID)
	if err != nil {
		return nil, eris.Wrap(err, "opportunity: get for enrich")
	}

	enriched := o.enrich(ctx, *opp, o.icpProfile(ctx, userID))
	enriched.Status = opp.Status
	enriched.ProjectID = opp.ProjectID
	enriched.ID = opp.ID

	if err := o.store.UpdateOpportunity(ctx, *enriched); err != nil {
		return nil, eris.Wrap(err, "opportunity: save enrichment")
	}
	return enriched, nil
}

// Discard marks an opportunity as rejected.
func (o *Orchestrator) Discard(ctx context.Context, userID, opportunityID string) error {
	return o.setStatus(ctx, userID, opportunityID, model.OpportunityDiscarded)
}

// Snooze defers an opportunity for later review.
func (o *Orchestrator) Snooze(ctx context.Context, userID, opportunityID string) error {
	return o.setStatus(ctx, userID, opportunityID, model.OpportunitySnoozed)
}

func (o *Orchestrator) setStatus(ctx context.Context, userID, opportunityID string, status model.OpportunityStatus) error {
	opp, err := o.store.GetOpportunity(ctx, userID, opportunityID)
	if err != nil {
		return eris.Wrap(err, "opportunity: get for status change")
	}
	if opp.Status == model.OpportunityConverted {
		return eris.Errorf("opportunity: %s is already converted", opportunityID)
	}
	opp.Status = status
	return eris.Wrap(o.store.UpdateOpportunity(ctx, *opp), "opportunity: update status")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
