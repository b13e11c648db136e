package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/discovery"
	"github.com/chainreach/prospect-cli/internal/fetcher"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/opportunity"
	"github.com/chainreach/prospect-cli/internal/outreach"
	"github.com/chainreach/prospect-cli/internal/sequence"
	"github.com/chainreach/prospect-cli/internal/store"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	projects      map[string]model.Project
	opportunities map[string]model.Opportunity
	contacts      map[string]model.Contact
	sequences     map[string]model.Sequence
	steps         map[string]model.SequenceStep
	watchlist     []model.WatchlistEntry
	pending       []sequence.PendingStep
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:      map[string]model.Project{},
		opportunities: map[string]model.Opportunity{},
		contacts:      map[string]model.Contact{},
		sequences:     map[string]model.Sequence{},
		steps:         map[string]model.SequenceStep{},
	}
}

func (f *fakeStore) CreateProject(_ context.Context, p model.Project) (*model.Project, error) {
	for _, existing := range f.projects {
		if existing.UserID == p.UserID && existing.URL == p.URL {
			return nil, store.ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	f.projects[p.ID] = p
	return &p, nil
}

func (f *fakeStore) GetProject(_ context.Context, userID, id string) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok || p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) FindProjectByURL(_ context.Context, userID, url string) (*model.Project, error) {
	for _, p := range f.projects {
		if p.UserID == userID && p.URL == url {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListProjects(_ context.Context, userID string) ([]model.Project, error) {
	var out []model.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, p model.Project) error {
	if _, ok := f.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) CreateOpportunity(_ context.Context, o model.Opportunity) (*model.Opportunity, error) {
	for _, existing := range f.opportunities {
		if existing.UserID == o.UserID && existing.URL == o.URL {
			return nil, store.ErrConflict
		}
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	f.opportunities[o.ID] = o
	return &o, nil
}

func (f *fakeStore) GetOpportunity(_ context.Context, userID, id string) (*model.Opportunity, error) {
	o, ok := f.opportunities[id]
	if !ok || o.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (f *fakeStore) FindOpportunityByURL(_ context.Context, userID, url string) (*model.Opportunity, error) {
	for _, o := range f.opportunities {
		if o.UserID == userID && o.URL == url {
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListOpportunities(_ context.Context, userID string, status model.OpportunityStatus) ([]model.Opportunity, error) {
	var out []model.Opportunity
	for _, o := range f.opportunities {
		if o.UserID == userID && (status == "" || o.Status == status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateOpportunity(_ context.Context, o model.Opportunity) error {
	if _, ok := f.opportunities[o.ID]; !ok {
		return store.ErrNotFound
	}
	f.opportunities[o.ID] = o
	return nil
}

func (f *fakeStore) CreateContact(_ context.Context, c model.Contact) (*model.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	f.contacts[c.ID] = c
	return &c, nil
}

func (f *fakeStore) FindContact(_ context.Context, filter contact.DedupFilter) (*model.Contact, error) {
	for _, c := range f.contacts {
		if filter.Matches(c) {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdateContact(_ context.Context, c model.Contact) error {
	if _, ok := f.contacts[c.ID]; !ok {
		return store.ErrNotFound
	}
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeStore) GetContact(_ context.Context, id string) (*model.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) CreateSequence(_ context.Context, s model.Sequence, steps []model.SequenceStep) (*model.Sequence, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	f.sequences[s.ID] = s
	for _, st := range steps {
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		st.SequenceID = s.ID
		f.steps[st.ID] = st
	}
	return &s, nil
}

func (f *fakeStore) ListSteps(_ context.Context, userID, sequenceID string) ([]model.SequenceStep, error) {
	seq, ok := f.sequences[sequenceID]
	if !ok || seq.UserID != userID {
		return nil, nil
	}
	var out []model.SequenceStep
	for _, st := range f.steps {
		if st.SequenceID == sequenceID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) GetStep(_ context.Context, _, stepID string) (*model.SequenceStep, error) {
	st, ok := f.steps[stepID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (f *fakeStore) StepContext(_ context.Context, _, stepID string) (*store.StepContext, error) {
	st, ok := f.steps[stepID]
	if !ok {
		return nil, store.ErrNotFound
	}
	seq := f.sequences[st.SequenceID]
	return &store.StepContext{Step: st, ProjectID: seq.ProjectID, ContactID: seq.ContactID}, nil
}

func (f *fakeStore) ListPendingSteps(context.Context, string, []string) ([]sequence.PendingStep, error) {
	return f.pending, nil
}

func (f *fakeStore) MarkStepStatus(_ context.Context, _, stepID string, status model.StepStatus, sentAt *time.Time) (bool, error) {
	st, ok := f.steps[stepID]
	if !ok || st.Status != model.StepPending {
		return false, nil
	}
	st.Status = status
	st.SentAt = sentAt
	f.steps[stepID] = st
	return true, nil
}

func (f *fakeStore) RescheduleStep(_ context.Context, _, stepID string, at time.Time) (bool, error) {
	st, ok := f.steps[stepID]
	if !ok || st.Status != model.StepPending {
		return false, nil
	}
	st.ScheduledAt = &at
	f.steps[stepID] = st
	return true, nil
}

func (f *fakeStore) ListWatchlist(_ context.Context, userID string) ([]model.WatchlistEntry, error) {
	var out []model.WatchlistEntry
	for _, e := range f.watchlist {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AddWatchlistEntry(_ context.Context, e model.WatchlistEntry) (*model.WatchlistEntry, error) {
	e.ID = uuid.New().String()
	f.watchlist = append(f.watchlist, e)
	return &e, nil
}

func (f *fakeStore) GetICPProfile(context.Context, string) (*model.ICPProfile, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

var _ store.Store = (*fakeStore)(nil)

// noPageFetcher fails every fetch so enrichment degrades to minimal rows.
type noPageFetcher struct{}

func (noPageFetcher) Fetch(context.Context, string) (*fetcher.Page, error) {
	return nil, eris.New("offline")
}

type noopAnalyzer struct{}

func (noopAnalyzer) AnalyzeProject(context.Context, string, string, *model.ICPProfile) (*model.Analysis, error) {
	return &model.Analysis{}, nil
}

func (noopAnalyzer) ScoreProject(context.Context, *model.Analysis, *model.ICPProfile) (*model.FitScore, error) {
	return &model.FitScore{}, nil
}

func newTestServer(st store.Store) http.Handler {
	f := noPageFetcher{}
	orch := opportunity.NewOrchestrator(st, f, noopAnalyzer{}, discovery.NewScanner(f, 5, 2), nil, opportunity.Options{})
	return New(st, orch, outreach.NewAdvancer(st), 0).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, user string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRequireUser_MissingHeader(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodGet, "/opportunities", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "X-User-ID")
}

func TestListOpportunities_EmptyIsArray(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodGet, "/opportunities", nil, "user-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestScanText_CreatesMinimalRows(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodPost, "/scan/text",
		map[string]string{"text": "look at https://somedao.xyz", "label": "notes"}, "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var res opportunity.ScanResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Created, 1)
	assert.Equal(t, "https://somedao.xyz/", res.Created[0].URL)
	assert.Equal(t, "notes", res.Created[0].SourceLabel)
}

func TestScanText_EmptyText(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodPost, "/scan/text", map[string]string{"text": ""}, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProject(t *testing.T) {
	h := newTestServer(newFakeStore())

	w := doJSON(t, h, http.MethodPost, "/projects",
		map[string]string{"url": "https://Uniswap.org"}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var project model.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))
	assert.Equal(t, "https://uniswap.org/", project.URL)
	// Name falls back to the host when not supplied.
	assert.Equal(t, "uniswap.org", project.Name)

	w = doJSON(t, h, http.MethodPost, "/projects",
		map[string]string{"url": "https://uniswap.org/"}, "user-1")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateProject_InvalidURL(t *testing.T) {
	h := newTestServer(newFakeStore())
	w := doJSON(t, h, http.MethodPost, "/projects", map[string]string{"url": "https://"}, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProjects_BoardOrder(t *testing.T) {
	st := newFakeStore()
	calm, _ := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://calm.xyz/", Name: "Calm",
	})
	hot, _ := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://hot.xyz/", Name: "Hot",
	})
	overdue := time.Now().UTC().Add(-48 * time.Hour)
	st.pending = []sequence.PendingStep{{ProjectID: hot.ID, ScheduledAt: &overdue}}

	h := newTestServer(st)
	w := doJSON(t, h, http.MethodGet, "/projects", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var out []struct {
		model.Project
		HasOverdueStep bool `json:"has_overdue_step"`
		OverdueSteps   int  `json:"overdue_steps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, hot.ID, out[0].ID)
	assert.True(t, out[0].HasOverdueStep)
	assert.Equal(t, 1, out[0].OverdueSteps)
	assert.Equal(t, calm.ID, out[1].ID)
	assert.False(t, out[1].HasOverdueStep)
}

func TestCreateContact_QuickCaptureMerges(t *testing.T) {
	st := newFakeStore()
	project, _ := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://uniswap.org/", Name: "Uniswap",
	})
	h := newTestServer(st)

	w := doJSON(t, h, http.MethodPost, "/contacts", map[string]string{
		"project_id": project.ID,
		"name":       "Hayden",
		"email":      "Hayden@Uniswap.org",
	}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var first model.Contact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, "hayden@uniswap.org", first.Email)

	// Same email again: merged into the existing row, gaps filled.
	w = doJSON(t, h, http.MethodPost, "/contacts", map[string]string{
		"project_id": project.ID,
		"name":       "H. Adams",
		"email":      "hayden@uniswap.org",
		"role":       "Founder",
		"telegram":   "haydenz",
	}, "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var merged model.Contact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &merged))
	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, "Hayden", merged.Name)
	assert.Equal(t, "Founder", merged.Role)
	assert.Equal(t, "@haydenz", merged.Telegram)
	assert.Len(t, st.contacts, 1)
}

func TestCreateContact_UnownedProject(t *testing.T) {
	st := newFakeStore()
	project, _ := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://uniswap.org/", Name: "Uniswap",
	})
	h := newTestServer(st)

	w := doJSON(t, h, http.MethodPost, "/contacts", map[string]string{
		"project_id": project.ID,
		"name":       "Intruder",
	}, "user-2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSequence_StepWithoutChannel(t *testing.T) {
	st := newFakeStore()
	project, _ := st.CreateProject(context.Background(), model.Project{
		UserID: "user-1", URL: "https://uniswap.org/", Name: "Uniswap",
	})
	h := newTestServer(st)

	w := doJSON(t, h, http.MethodPost, "/sequences", map[string]any{
		"project_id": project.ID,
		"contact_id": "contact-1",
		"steps":      []map[string]any{{"content": "hi"}},
	}, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no channel")
}

func TestNextStep_DoneWhenNoPending(t *testing.T) {
	st := newFakeStore()
	st.sequences["seq-1"] = model.Sequence{ID: "seq-1", UserID: "user-1"}
	h := newTestServer(st)

	w := doJSON(t, h, http.MethodGet, "/sequences/seq-1/next", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"done":true}`, w.Body.String())
}

func TestStepAction(t *testing.T) {
	newSeededStore := func() *fakeStore {
		st := newFakeStore()
		project, _ := st.CreateProject(context.Background(), model.Project{
			UserID: "user-1", URL: "https://uniswap.org/", Name: "Uniswap",
			Status: model.ProjectNotContacted,
		})
		c, _ := st.CreateContact(context.Background(), model.Contact{
			ProjectID: project.ID, Name: "Hayden",
		})
		st.sequences["seq-1"] = model.Sequence{
			ID: "seq-1", UserID: "user-1", ProjectID: project.ID, ContactID: c.ID,
		}
		st.steps["step-1"] = model.SequenceStep{
			ID: "step-1", SequenceID: "seq-1", StepNumber: 1,
			Channel: "email", Status: model.StepPending,
		}
		return st
	}

	t.Run("unknown action", func(t *testing.T) {
		h := newTestServer(newSeededStore())
		w := doJSON(t, h, http.MethodPost, "/steps/step-1/action",
			map[string]string{"action": "archive"}, "user-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reschedule without at", func(t *testing.T) {
		h := newTestServer(newSeededStore())
		w := doJSON(t, h, http.MethodPost, "/steps/step-1/action",
			map[string]string{"action": "reschedule"}, "user-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sent", func(t *testing.T) {
		st := newSeededStore()
		h := newTestServer(st)
		w := doJSON(t, h, http.MethodPost, "/steps/step-1/action",
			map[string]string{"action": "sent"}, "user-1")
		require.Equal(t, http.StatusOK, w.Code)

		var step model.SequenceStep
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
		assert.Equal(t, model.StepSent, step.Status)
		assert.NotNil(t, step.SentAt)
	})

	t.Run("sent twice conflicts", func(t *testing.T) {
		st := newSeededStore()
		h := newTestServer(st)
		w := doJSON(t, h, http.MethodPost, "/steps/step-1/action",
			map[string]string{"action": "sent"}, "user-1")
		require.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, h, http.MethodPost, "/steps/step-1/action",
			map[string]string{"action": "sent"}, "user-1")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestWatchlist(t *testing.T) {
	h := newTestServer(newFakeStore())

	w := doJSON(t, h, http.MethodGet, "/watchlist", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = doJSON(t, h, http.MethodPost, "/watchlist",
		map[string]string{"url": "https://DefiLlama.com", "label": "llama"}, "user-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var entry model.WatchlistEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "https://defillama.com/", entry.URL)
	assert.Equal(t, "llama", entry.Label)

	w = doJSON(t, h, http.MethodPost, "/watchlist", map[string]string{"label": "x"}, "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvertEndpoint(t *testing.T) {
	st := newFakeStore()
	created, _ := st.CreateOpportunity(context.Background(), model.Opportunity{
		UserID: "user-1", URL: "https://somedao.xyz/", Title: "SomeDAO",
		Status: model.OpportunityNew,
	})
	h := newTestServer(st)

	w := doJSON(t, h, http.MethodPost, "/opportunities/"+created.ID+"/convert", nil, "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var project model.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))
	assert.Equal(t, "https://somedao.xyz/", project.URL)
	assert.Equal(t, model.ProjectNotContacted, project.Status)

	w = doJSON(t, h, http.MethodPost, "/opportunities/missing/convert", nil, "user-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
