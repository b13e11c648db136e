package opportunity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainreach/prospect-cli/internal/ai"
	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/discovery"
	"github.com/chainreach/prospect-cli/internal/fetcher"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/sequence"
	"github.com/chainreach/prospect-cli/internal/store"
)

// memStore is an in-memory Store covering what the orchestrator touches.
type memStore struct {
	projects      map[string]model.Project
	opportunities map[string]model.Opportunity
	watchlist     []model.WatchlistEntry
	icp           *model.ICPProfile
}

func newMemStore() *memStore {
	return &memStore{
		projects:      map[string]model.Project{},
		opportunities: map[string]model.Opportunity{},
	}
}

func (m *memStore) CreateProject(_ context.Context, p model.Project) (*model.Project, error) {
	for _, existing := range m.projects {
		if existing.UserID == p.UserID && existing.URL == p.URL {
			return nil, store.ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.projects[p.ID] = p
	return &p, nil
}

func (m *memStore) GetProject(_ context.Context, userID, id string) (*model.Project, error) {
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) FindProjectByURL(_ context.Context, userID, url string) (*model.Project, error) {
	for _, p := range m.projects {
		if p.UserID == userID && p.URL == url {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListProjects(context.Context, string) ([]model.Project, error) {
	return nil, nil
}

func (m *memStore) UpdateProject(_ context.Context, p model.Project) error {
	if _, ok := m.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) CreateOpportunity(_ context.Context, o model.Opportunity) (*model.Opportunity, error) {
	for _, existing := range m.opportunities {
		if existing.UserID == o.UserID && existing.URL == o.URL {
			return nil, store.ErrConflict
		}
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	m.opportunities[o.ID] = o
	return &o, nil
}

func (m *memStore) GetOpportunity(_ context.Context, userID, id string) (*model.Opportunity, error) {
	o, ok := m.opportunities[id]
	if !ok || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (m *memStore) FindOpportunityByURL(_ context.Context, userID, url string) (*model.Opportunity, error) {
	for _, o := range m.opportunities {
		if o.UserID == userID && o.URL == url {
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListOpportunities(context.Context, string, model.OpportunityStatus) ([]model.Opportunity, error) {
	return nil, nil
}

func (m *memStore) UpdateOpportunity(_ context.Context, o model.Opportunity) error {
	if _, ok := m.opportunities[o.ID]; !ok {
		return store.ErrNotFound
	}
	m.opportunities[o.ID] = o
	return nil
}

func (m *memStore) CreateContact(context.Context, model.Contact) (*model.Contact, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) FindContact(context.Context, contact.DedupFilter) (*model.Contact, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) UpdateContact(context.Context, model.Contact) error { return store.ErrNotFound }
func (m *memStore) GetContact(context.Context, string) (*model.Contact, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) CreateSequence(context.Context, model.Sequence, []model.SequenceStep) (*model.Sequence, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) ListSteps(context.Context, string, string) ([]model.SequenceStep, error) {
	return nil, nil
}
func (m *memStore) GetStep(context.Context, string, string) (*model.SequenceStep, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) StepContext(context.Context, string, string) (*store.StepContext, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) ListPendingSteps(context.Context, string, []string) ([]sequence.PendingStep, error) {
	return nil, nil
}
func (m *memStore) MarkStepStatus(context.Context, string, string, model.StepStatus, *time.Time) (bool, error) {
	return false, nil
}
func (m *memStore) RescheduleStep(context.Context, string, string, time.Time) (bool, error) {
	return false, nil
}

func (m *memStore) ListWatchlist(context.Context, string) ([]model.WatchlistEntry, error) {
	return m.watchlist, nil
}
func (m *memStore) AddWatchlistEntry(_ context.Context, e model.WatchlistEntry) (*model.WatchlistEntry, error) {
	m.watchlist = append(m.watchlist, e)
	return &e, nil
}

func (m *memStore) GetICPProfile(context.Context, string) (*model.ICPProfile, error) {
	if m.icp == nil {
		return nil, store.ErrNotFound
	}
	return m.icp, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ store.Store = (*memStore)(nil)

// fakeFetcher serves canned pages by URL.
type fakeFetcher struct {
	pages map[string]*fetcher.Page
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Page, error) {
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, eris.Errorf("no page for %s", rawURL)
	}
	return p, nil
}

// fixedAnalyzer returns canned analysis results.
type fixedAnalyzer struct {
	analysis model.Analysis
	fit      model.FitScore
}

func (f *fixedAnalyzer) AnalyzeProject(context.Context, string, string, *model.ICPProfile) (*model.Analysis, error) {
	a := f.analysis
	return &a, nil
}

func (f *fixedAnalyzer) ScoreProject(context.Context, *model.Analysis, *model.ICPProfile) (*model.FitScore, error) {
	s := f.fit
	return &s, nil
}

var _ ai.Analyzer = (*fixedAnalyzer)(nil)

func newTestOrchestrator(st store.Store, f discovery.PageFetcher) *Orchestrator {
	analyzer := &fixedAnalyzer{
		analysis: model.Analysis{
			Summary:      "a DEX",
			CategoryTags: []string{"defi"},
			Stage:        "mainnet",
			BDAngles:     []string{"integration"},
			MQAScore:     70,
		},
		fit: model.FitScore{Score: 60, Explanation: "overlap"},
	}
	playbooks := []model.Playbook{
		{Key: "defi-integration", TriggerTags: []string{"defi"}},
	}
	return NewOrchestrator(st, f, analyzer, discovery.NewScanner(f, 5, 2), playbooks, Options{MaxCandidates: 3})
}

func TestScanText_CreatesEnrichedOpportunities(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{pages: map[string]*fetcher.Page{
		"https://uniswap.org/": {Title: "Uniswap", Text: "swap tokens"},
	}}
	orch := newTestOrchestrator(st, f)

	res, err := orch.ScanText(context.Background(), "user-1", "check https://uniswap.org", "notes")
	require.NoError(t, err)
	require.Len(t, res.Created, 1)

	opp := res.Created[0]
	assert.Equal(t, "https://uniswap.org/", opp.URL)
	assert.Equal(t, "Uniswap", opp.Title)
	assert.Equal(t, model.SourceTextScan, opp.SourceType)
	assert.Equal(t, []string{"defi"}, opp.Tags)
	require.NotNil(t, opp.LeadScore)
	assert.Positive(t, *opp.LeadScore)
	assert.Equal(t, []string{"defi-integration"}, opp.PlaybookMatches)
	assert.Equal(t, model.OpportunityNew, opp.Status)
}

func TestScanText_SkipsKnownURLs(t *testing.T) {
	st := newMemStore()
	_, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/",
	})
	require.NoError(t, err)
	_, err = st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://aave.com/", Name: "Aave",
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})

	res, err := orch.ScanText(context.Background(), "user-1",
		"https://uniswap.org and https://aave.com again https://uniswap.org/", "")
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	// Two known URLs plus one in-batch duplicate.
	assert.Equal(t, 3, res.Skipped)
}

func TestScanText_FetchFailureKeepsMinimalRow(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, &fakeFetcher{})

	res, err := orch.ScanText(context.Background(), "user-1", "https://unreachable.xyz", "")
	require.NoError(t, err)
	require.Len(t, res.Created, 1)

	opp := res.Created[0]
	assert.Equal(t, "https://unreachable.xyz/", opp.Title)
	assert.Nil(t, opp.LeadScore)
	assert.Nil(t, opp.MQAScore)
	assert.Empty(t, opp.Tags)
}

func TestScanText_StopsAtMaxCandidates(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, &fakeFetcher{})

	res, err := orch.ScanText(context.Background(), "user-1",
		"https://a1.xyz https://a2.xyz https://a3.xyz https://a4.xyz https://a5.xyz", "")
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)
}

func TestScanPage_UsesScanner(t *testing.T) {
	st := newMemStore()
	f := &fakeFetcher{pages: map[string]*fetcher.Page{
		"https://uniswap.org/blog": {HTML: `<a href="https://somedao.xyz">dao</a>`},
		"https://somedao.xyz/":     {Title: "SomeDAO", Text: "dao governance"},
	}}
	orch := newTestOrchestrator(st, f)

	res, err := orch.ScanPage(context.Background(), "user-1", "https://uniswap.org/blog", "blog")
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "https://somedao.xyz/", res.Created[0].URL)
	assert.Equal(t, model.SourcePageScan, res.Created[0].SourceType)
	assert.Equal(t, "blog", res.Created[0].SourceLabel)
}

func TestScanWatchlist_EntriesSettleIndependently(t *testing.T) {
	st := newMemStore()
	st.watchlist = []model.WatchlistEntry{
		{UserID: "user-1", URL: "https://defillama.com/", Label: "llama"},
		{UserID: "user-1", URL: "https://deadsite.xyz/", Label: "dead"},
	}
	f := &fakeFetcher{pages: map[string]*fetcher.Page{
		"https://defillama.com/": {HTML: `<a href="https://newproto.xyz">p</a>`},
		"https://newproto.xyz/":  {Title: "NewProto", Text: "protocol"},
	}}
	orch := newTestOrchestrator(st, f)

	res, err := orch.ScanWatchlist(context.Background(), "user-1")
	require.NoError(t, err)
	// Dead site falls back to its own URL as candidate; both entries yield rows.
	urls := make([]string, 0, len(res.Created))
	for _, o := range res.Created {
		urls = append(urls, o.URL)
		assert.Equal(t, model.SourceWatchlist, o.SourceType)
	}
	assert.Contains(t, urls, "https://newproto.xyz/")
	assert.Contains(t, urls, "https://deadsite.xyz/")
}

func TestConvert_CreatesLinkedProject(t *testing.T) {
	st := newMemStore()
	icpScore := 60.0
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID:   "user-1",
		URL:      "https://uniswap.org/",
		Title:    "Uniswap",
		Tags:     []string{"defi"},
		ICPScore: &icpScore,
		Status:   model.OpportunityNew,
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})

	project, err := orch.Convert(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://uniswap.org/", project.URL)
	assert.Equal(t, "Uniswap", project.Name)
	assert.Equal(t, model.ProjectNotContacted, project.Status)
	assert.Equal(t, []string{"defi"}, project.CategoryTags)

	opp, err := st.GetOpportunity(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityConverted, opp.Status)
	assert.Equal(t, project.ID, opp.ProjectID)
}

func TestConvert_Idempotent(t *testing.T) {
	st := newMemStore()
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/", Title: "Uniswap",
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})

	first, err := orch.Convert(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	second, err := orch.Convert(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, st.projects, 1)
}

func TestConvert_LinksExistingProject(t *testing.T) {
	st := newMemStore()
	project, err := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://uniswap.org/", Name: "Uniswap",
	})
	require.NoError(t, err)
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/", Title: "Uniswap again",
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})

	got, err := orch.Convert(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
	assert.Len(t, st.projects, 1)
}

func TestConvert_WrongUser(t *testing.T) {
	st := newMemStore()
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/",
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})

	_, err = orch.Convert(context.Background(), "user-2", created.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestEnrich_OverwritesDerivedFieldsOnly(t *testing.T) {
	st := newMemStore()
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1",
		URL:    "https://uniswap.org/",
		Title:  "https://uniswap.org/",
		Status: model.OpportunitySnoozed,
	})
	require.NoError(t, err)

	f := &fakeFetcher{pages: map[string]*fetcher.Page{
		"https://uniswap.org/": {Title: "Uniswap", Text: "swap tokens"},
	}}
	orch := newTestOrchestrator(st, f)

	opp, err := orch.Enrich(context.Background(), "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Uniswap", opp.Title)
	assert.Equal(t, []string{"defi"}, opp.Tags)
	require.NotNil(t, opp.LeadScore)
	// Review state untouched.
	assert.Equal(t, model.OpportunitySnoozed, opp.Status)
}

func TestDiscardAndSnooze(t *testing.T) {
	st := newMemStore()
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/", Status: model.OpportunityNew,
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})
	ctx := context.Background()

	require.NoError(t, orch.Snooze(ctx, "user-1", created.ID))
	opp, err := st.GetOpportunity(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OpportunitySnoozed, opp.Status)

	require.NoError(t, orch.Discard(ctx, "user-1", created.ID))
	opp, err = st.GetOpportunity(ctx, "user-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityDiscarded, opp.Status)
}

func TestDiscard_ConvertedIsRefused(t *testing.T) {
	st := newMemStore()
	created, err := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://uniswap.org/", Status: model.OpportunityConverted,
	})
	require.NoError(t, err)

	orch := newTestOrchestrator(st, &fakeFetcher{})
	err = orch.Discard(context.Background(), "user-1", created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already converted")
}
