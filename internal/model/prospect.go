package model

import "time"

// ProjectStatus represents the lifecycle stage of a tracked prospect account.
type ProjectStatus string

const (
	ProjectNotContacted ProjectStatus = "NOT_CONTACTED"
	ProjectContacted    ProjectStatus = "CONTACTED"
	ProjectWaitingReply ProjectStatus = "WAITING_REPLY"
	ProjectCallBooked   ProjectStatus = "CALL_BOOKED"
	ProjectWon          ProjectStatus = "WON"
	ProjectLost         ProjectStatus = "LOST"
)

// OpportunityStatus represents the review state of a discovered lead.
type OpportunityStatus string

const (
	OpportunityNew       OpportunityStatus = "NEW"
	OpportunitySnoozed   OpportunityStatus = "SNOOZED"
	OpportunityDiscarded OpportunityStatus = "DISCARDED"
	OpportunityConverted OpportunityStatus = "CONVERTED"
)

// SourceType describes how an opportunity was discovered.
type SourceType string

const (
	SourceTextScan  SourceType = "TEXT_SCAN"
	SourcePageScan  SourceType = "PAGE_SCAN"
	SourceWatchlist SourceType = "WATCHLIST"
)

// StepStatus represents the state of a single outreach step.
type StepStatus string

const (
	StepPending StepStatus = "PENDING"
	StepSent    StepStatus = "SENT"
	StepSkipped StepStatus = "SKIPPED"
)

// Plan is the user's subscription plan, gating live AI calls.
type Plan string

const (
	PlanFree   Plan = "free"
	PlanPro    Plan = "pro"
	PlanGrowth Plan = "growth"
)

// Project is a tracked prospect account in the BD pipeline.
// URL is unique within a user's project set.
type Project struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	URL             string        `json:"url"`
	Name            string        `json:"name"`
	Status          ProjectStatus `json:"status"`
	Summary         string        `json:"summary,omitempty"`
	CategoryTags    []string      `json:"category_tags,omitempty"`
	Stage           string        `json:"stage,omitempty"`
	TargetUsers     string        `json:"target_users,omitempty"`
	PainPoints      []string      `json:"pain_points,omitempty"`
	BDAngles        []string      `json:"bd_angles,omitempty"`
	ICPScore        *float64      `json:"icp_score,omitempty"`
	MQAScore        *float64      `json:"mqa_score,omitempty"`
	PlaybookMatches []string      `json:"playbook_matches,omitempty"`
	NextFollowUpAt  *time.Time    `json:"next_follow_up_at,omitempty"`
	LastContactAt   *time.Time    `json:"last_contact_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Opportunity is an unconverted candidate lead discovered by scanning.
// At most one exists per normalized URL per user; once converted it is
// linked 1:1 to a Project via ProjectID.
type Opportunity struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	URL             string            `json:"url"`
	SourceType      SourceType        `json:"source_type"`
	SourceLabel     string            `json:"source_label,omitempty"`
	RawContext      string            `json:"raw_context,omitempty"`
	Title           string            `json:"title"`
	Tags            []string          `json:"tags,omitempty"`
	ICPScore        *float64          `json:"icp_score,omitempty"`
	MQAScore        *float64          `json:"mqa_score,omitempty"`
	BDAngles        []string          `json:"bd_angles,omitempty"`
	LeadScore       *float64          `json:"lead_score,omitempty"`
	LeadReasons     []string          `json:"lead_reasons,omitempty"`
	SignalStrength  string            `json:"signal_strength,omitempty"`
	PlaybookMatches []string          `json:"playbook_matches,omitempty"`
	Status          OpportunityStatus `json:"status"`
	ProjectID       string            `json:"project_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Contact belongs to exactly one project. Social handles are each optional
// and independently usable for dedup. ChannelPreference holds the encoded
// weighted-count string (see internal/sequence.Preference).
type Contact struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	Name              string    `json:"name"`
	Role              string    `json:"role,omitempty"`
	Email             string    `json:"email,omitempty"`
	LinkedinURL       string    `json:"linkedin_url,omitempty"`
	TwitterHandle     string    `json:"twitter_handle,omitempty"`
	Telegram          string    `json:"telegram,omitempty"`
	Persona           string    `json:"persona,omitempty"`
	ChannelPreference string    `json:"channel_preference,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Sequence is a planned, ordered set of outreach touches for one
// project+contact pair.
type Sequence struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	ContactID string    `json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SequenceStep is one touch in a sequence. Step numbers are a dense 1..N
// ordering; a step transitions PENDING to SENT or SKIPPED exactly once.
type SequenceStep struct {
	ID          string     `json:"id"`
	SequenceID  string     `json:"sequence_id"`
	StepNumber  int        `json:"step_number"`
	Channel     string     `json:"channel"`
	Content     string     `json:"content,omitempty"`
	Status      StepStatus `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// ICPProfile holds the user-configured targeting criteria used to score fit.
// Read-only input to scoring.
type ICPProfile struct {
	ID               string   `json:"id"`
	UserID           string   `json:"user_id"`
	TargetCategories []string `json:"target_categories,omitempty"`
	TargetStages     []string `json:"target_stages,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Playbook is a named outreach motion with trigger conditions matched
// against a project analysis. Read-only input to scoring.
type Playbook struct {
	Key           string   `json:"key" yaml:"key"`
	Title         string   `json:"title" yaml:"title"`
	TriggerTags   []string `json:"trigger_tags,omitempty" yaml:"trigger_tags"`
	TriggerStages []string `json:"trigger_stages,omitempty" yaml:"trigger_stages"`
	Angle         string   `json:"angle,omitempty" yaml:"angle"`
}

// WatchlistEntry is a user-owned URL monitored by watchlist scans.
type WatchlistEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Analysis is the AI-derived view of a project page.
type Analysis struct {
	Summary      string   `json:"summary"`
	CategoryTags []string `json:"category_tags"`
	Stage        string   `json:"stage"`
	TargetUsers  string   `json:"target_users"`
	PainPoints   []string `json:"pain_points"`
	BDAngles     []string `json:"bd_angles"`
	MQAScore     float64  `json:"mqa_score"`
	MQAReasons   []string `json:"mqa_reasons"`
}

// FitScore is the ICP-fit verdict for an analyzed project.
type FitScore struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}
