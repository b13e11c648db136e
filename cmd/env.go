package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/ai"
	"github.com/chainreach/prospect-cli/internal/config"
	"github.com/chainreach/prospect-cli/internal/discovery"
	"github.com/chainreach/prospect-cli/internal/fetcher"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/opportunity"
	"github.com/chainreach/prospect-cli/internal/outreach"
	"github.com/chainreach/prospect-cli/internal/playbook"
	"github.com/chainreach/prospect-cli/internal/store"
	"github.com/chainreach/prospect-cli/pkg/claude"
)

// env holds the wired application components shared by the commands.
type env struct {
	Store        store.Store
	Orchestrator *opportunity.Orchestrator
	Advancer     *outreach.Advancer
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initEnv opens the store and builds the discovery/outreach components from
// config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	fetchClient := fetcher.New(fetcher.Options{
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	})

	var live ai.Analyzer
	if cfg.Anthropic.Key != "" {
		live = ai.NewClaudeAnalyzer(claude.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	}
	analyzer := ai.NewGated(live, ai.NewHeuristicAnalyzer(), planFromEnv())

	reg, err := playbook.LoadFile(cfg.Playbook.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load playbooks")
	}

	scanner := discovery.NewScanner(fetchClient, cfg.Scan.DetailPageCap, cfg.Scan.FetchParallel)
	orch := opportunity.NewOrchestrator(st, fetchClient, analyzer, scanner, reg.Playbooks, opportunity.Options{
		MaxCandidates:  cfg.Scan.MaxCandidates,
		WatchlistLimit: cfg.Scan.WatchlistLimit,
	})

	return &env{
		Store:        st,
		Orchestrator: orch,
		Advancer:     outreach.NewAdvancer(st),
	}, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, sc.MaxConns, sc.MinConns)
	case "sqlite":
		path := sc.DatabaseURL
		if path == "" {
			path = "prospect.db"
		}
		return store.NewSQLite(path)
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}

// planFromEnv resolves the subscription plan gating live AI. Defaults to
// free, which keeps everything on the heuristic analyzer.
func planFromEnv() model.Plan {
	switch cfg.Plan {
	case string(model.PlanPro):
		return model.PlanPro
	case string(model.PlanGrowth):
		return model.PlanGrowth
	default:
		return model.PlanFree
	}
}
