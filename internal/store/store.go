// Package store persists prospect entities behind a driver-neutral
// interface with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/sequence"
)

// ErrNotFound marks a lookup scoped to {id, user} that missed. Always
// surfaced to callers: it implies an authorization or referential problem,
// never a recoverable fetch failure.
var ErrNotFound = eris.New("store: not found")

// ErrConflict marks a uniqueness violation (duplicate URL for a user).
// Non-fatal: callers treat it as "already exists".
var ErrConflict = eris.New("store: already exists")

// Store is the persistence interface. Every query is scoped to the owning
// user.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p model.Project) (*model.Project, error)
	GetProject(ctx context.Context, userID, id string) (*model.Project, error)
	FindProjectByURL(ctx context.Context, userID, url string) (*model.Project, error)
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) error

	// Opportunities
	CreateOpportunity(ctx context.Context, o model.Opportunity) (*model.Opportunity, error)
	GetOpportunity(ctx context.Context, userID, id string) (*model.Opportunity, error)
	FindOpportunityByURL(ctx context.Context, userID, url string) (*model.Opportunity, error)
	ListOpportunities(ctx context.Context, userID string, status model.OpportunityStatus) ([]model.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o model.Opportunity) error

	// Contacts
	CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error)
	FindContact(ctx context.Context, filter contact.DedupFilter) (*model.Contact, error)
	UpdateContact(ctx context.Context, c model.Contact) error
	GetContact(ctx context.Context, id string) (*model.Contact, error)

	// Sequences and steps
	CreateSequence(ctx context.Context, s model.Sequence, steps []model.SequenceStep) (*model.Sequence, error)
	ListSteps(ctx context.Context, userID, sequenceID string) ([]model.SequenceStep, error)
	GetStep(ctx context.Context, userID, stepID string) (*model.SequenceStep, error)
	StepContext(ctx context.Context, userID, stepID string) (*StepContext, error)
	ListPendingSteps(ctx context.Context, userID string, projectIDs []string) ([]sequence.PendingStep, error)
	MarkStepStatus(ctx context.Context, userID, stepID string, status model.StepStatus, sentAt *time.Time) (bool, error)
	RescheduleStep(ctx context.Context, userID, stepID string, at time.Time) (bool, error)

	// Watchlist
	ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error)
	AddWatchlistEntry(ctx context.Context, e model.WatchlistEntry) (*model.WatchlistEntry, error)

	// ICP profile
	GetICPProfile(ctx context.Context, userID string) (*model.ICPProfile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// StepContext joins a step to its sequence's project and contact, for
// post-action bookkeeping (channel preference, lastContactAt).
type StepContext struct {
	Step      model.SequenceStep
	ProjectID string
	ContactID string
}
