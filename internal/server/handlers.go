package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/board"
	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/discovery"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/outreach"
	"github.com/chainreach/prospect-cli/internal/sequence"
	"github.com/chainreach/prospect-cli/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		zap.L().Error("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": eris.Cause(err).Error()})
}

func decode(r *http.Request, v any) error {
	return eris.Wrap(json.NewDecoder(r.Body).Decode(v), "server: decode request")
}

// --- Scans ---

type scanTextRequest struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func (s *Server) handleScanText(w http.ResponseWriter, r *http.Request) {
	var req scanTextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: text is required"))
		return
	}

	res, err := s.orchestrator.ScanText(r.Context(), userID(r), req.Text, req.Label)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type scanPageRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

func (s *Server) handleScanPage(w http.ResponseWriter, r *http.Request) {
	var req scanPageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: url is required"))
		return
	}

	res, err := s.orchestrator.ScanPage(r.Context(), userID(r), req.URL, req.Label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanWatchlist(w http.ResponseWriter, r *http.Request) {
	res, err := s.orchestrator.ScanWatchlist(r.Context(), userID(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Opportunities ---

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	status := model.OpportunityStatus(r.URL.Query().Get("status"))
	opps, err := s.store.ListOpportunities(r.Context(), userID(r), status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if opps == nil {
		opps = []model.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	project, err := s.orchestrator.Convert(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Discard(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Snooze(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "snoozed"})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	opp, err := s.orchestrator.Enrich(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// --- Projects / board ---

// boardProject is a project plus its outreach due-meta, in board order.
type boardProject struct {
	model.Project
	HasOverdueStep bool       `json:"has_overdue_step"`
	OverdueSteps   int        `json:"overdue_steps"`
	NextStepDueAt  *time.Time `json:"next_step_due_at,omitempty"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	projects, err := s.store.ListProjects(r.Context(), uid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ids := make([]string, len(projects))
	byID := make(map[string]model.Project, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	pending, err := s.store.ListPendingSteps(r.Context(), uid, ids)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	meta := sequence.BuildMeta(pending, ids, time.Now().UTC())

	entries := make([]board.Entry, 0, len(projects))
	for _, p := range projects {
		m := meta[p.ID]
		entries = append(entries, board.Entry{
			ID:             p.ID,
			UpdatedAt:      p.UpdatedAt,
			HasOverdueStep: m.HasOverdue,
			NextStepDueAt:  m.NextDueAt,
		})
	}

	out := make([]boardProject, 0, len(projects))
	for _, e := range board.Rank(entries) {
		m := meta[e.ID]
		out = append(out, boardProject{
			Project:        byID[e.ID],
			HasOverdueStep: m.HasOverdue,
			OverdueSteps:   m.OverdueCount,
			NextStepDueAt:  m.NextDueAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createProjectRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: url is required"))
		return
	}

	normalized, err := discovery.Normalize(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: invalid url"))
		return
	}
	name := req.Name
	if name == "" {
		name = discovery.Host(normalized)
	}

	project, err := s.store.CreateProject(r.Context(), model.Project{
		UserID: userID(r),
		URL:    normalized,
		Name:   name,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// --- Contacts ---

type createContactRequest struct {
	ProjectID     string `json:"project_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Email         string `json:"email"`
	LinkedinURL   string `json:"linkedin_url"`
	TwitterHandle string `json:"twitter_handle"`
	Telegram      string `json:"telegram"`
	Persona       string `json:"persona"`
}

// handleCreateContact is quick capture: dedup by handle within the project,
// merging into an existing contact instead of creating a duplicate.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProjectID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: project_id and name are required"))
		return
	}

	// Project must exist and belong to the caller.
	if _, err := s.store.GetProject(r.Context(), userID(r), req.ProjectID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	handles := contact.NormalizeHandles(contact.Handles{
		Email:         req.Email,
		LinkedinURL:   req.LinkedinURL,
		TwitterHandle: req.TwitterHandle,
		Telegram:      req.Telegram,
	})
	incoming := model.Contact{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		Role:          req.Role,
		Email:         handles.Email,
		LinkedinURL:   handles.LinkedinURL,
		TwitterHandle: handles.TwitterHandle,
		Telegram:      handles.Telegram,
		Persona:       req.Persona,
	}

	if filter := contact.BuildDedupFilter(req.ProjectID, handles); filter != nil {
		existing, err := s.store.FindContact(r.Context(), *filter)
		if err == nil {
			merged := contact.Merge(*existing, incoming)
			if err := s.store.UpdateContact(r.Context(), merged); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, merged)
			return
		}
		if !eris.Is(err, store.ErrNotFound) {
			writeError(w, statusFor(err), err)
			return
		}
	}

	created, err := s.store.CreateContact(r.Context(), incoming)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// --- Sequences and steps ---

type createSequenceStep struct {
	StepNumber  int        `json:"step_number"`
	Channel     string     `json:"channel"`
	Content     string     `json:"content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type createSequenceRequest struct {
	ProjectID string               `json:"project_id"`
	ContactID string               `json:"contact_id"`
	Steps     []createSequenceStep `json:"steps"`
}

func (s *Server) handleCreateSequence(w http.ResponseWriter, r *http.Request) {
	var req createSequenceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProjectID == "" || req.ContactID == "" || len(req.Steps) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("server: project_id, contact_id and steps are required"))
		return
	}

	if _, err := s.store.GetProject(r.Context(), userID(r), req.ProjectID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	steps := make([]model.SequenceStep, len(req.Steps))
	for i, st := range req.Steps {
		if st.Channel == "" {
			writeError(w, http.StatusBadRequest, eris.Errorf("server: step %d has no channel", i+1))
			return
		}
		steps[i] = model.SequenceStep{
			StepNumber:  st.StepNumber,
			Channel:     st.Channel,
			Content:     st.Content,
			Status:      model.StepPending,
			ScheduledAt: st.ScheduledAt,
		}
		if steps[i].StepNumber == 0 {
			steps[i].StepNumber = i + 1
		}
	}

	seq, err := s.store.CreateSequence(r.Context(), model.Sequence{
		UserID:    userID(r),
		ProjectID: req.ProjectID,
		ContactID: req.ContactID,
	}, steps)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, seq)
}

func (s *Server) handleNextStep(w http.ResponseWriter, r *http.Request) {
	step, err := s.advancer.Next(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if step == nil {
		writeJSON(w, http.StatusOK, map[string]any{"done": true})
		return
	}
	writeJSON(w, http.StatusOK, step)
}

type stepActionRequest struct {
	Action string     `json:"action"`
	At     *time.Time `json:"at"`
}

func (s *Server) handleStepAction(w http.ResponseWriter, r *http.Request) {
	var req stepActionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	action := outreach.Action(req.Action)
	switch action {
	case outreach.ActionSent, outreach.ActionSkip, outreach.ActionReschedule:
	default:
		writeError(w, http.StatusBadRequest, eris.Errorf("server: unknown action %q", req.Action))
		return
	}
	if action == outreach.ActionReschedule && req.At == nil {
		writeError(w, http.StatusBadRequest, eris.New("server: reschedule requires at"))
		return
	}

	step, err := s.advancer.Act(r.Context(), userID(r), chi.URLParam(r, "id"), action, req.At)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// --- Watchlist ---

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListWatchlist(r.Context(), userID(r))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if entries == nil {
		entries = []model.WatchlistEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type addWatchlistRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req addWatchlistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, eris.New("server: url is required"))
		return
	}

	normalized, err := discovery.Normalize(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: invalid url"))
		return
	}

	entry, err := s.store.AddWatchlistEntry(r.Context(), model.WatchlistEntry{
		UserID: userID(r),
		URL:    normalized,
		Label:  req.Label,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
