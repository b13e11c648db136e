package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/sequence"
)

// pgxDB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	db pgxDB
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	if minConns > 0 {
		pgxCfg.MinConns = minConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{db: pool}, nil
}

// NewPostgresFromDB wraps an existing pool-compatible handle (tests).
func NewPostgresFromDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	url               TEXT NOT NULL,
	name              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'NOT_CONTACTED',
	summary           TEXT NOT NULL DEFAULT '',
	category_tags     JSONB,
	stage             TEXT NOT NULL DEFAULT '',
	target_users      TEXT NOT NULL DEFAULT '',
	pain_points       JSONB,
	bd_angles         JSONB,
	icp_score         DOUBLE PRECISION,
	mqa_score         DOUBLE PRECISION,
	playbook_matches  JSONB,
	next_follow_up_at TIMESTAMPTZ,
	last_contact_at   TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS opportunities (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	url              TEXT NOT NULL,
	source_type      TEXT NOT NULL,
	source_label     TEXT NOT NULL DEFAULT '',
	raw_context      TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	tags             JSONB,
	icp_score        DOUBLE PRECISION,
	mqa_score        DOUBLE PRECISION,
	bd_angles        JSONB,
	lead_score       DOUBLE PRECISION,
	lead_reasons     JSONB,
	signal_strength  TEXT NOT NULL DEFAULT '',
	playbook_matches JSONB,
	status           TEXT NOT NULL DEFAULT 'NEW',
	project_id       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS contacts (
	id                 TEXT PRIMARY KEY,
	project_id         TEXT NOT NULL REFERENCES projects(id),
	name               TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	linkedin_url       TEXT NOT NULL DEFAULT '',
	twitter_handle     TEXT NOT NULL DEFAULT '',
	telegram           TEXT NOT NULL DEFAULT '',
	persona            TEXT NOT NULL DEFAULT '',
	channel_preference TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sequences (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	project_id TEXT NOT NULL REFERENCES projects(id),
	contact_id TEXT NOT NULL REFERENCES contacts(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sequence_steps (
	id           TEXT PRIMARY KEY,
	sequence_id  TEXT NOT NULL REFERENCES sequences(id),
	step_number  INTEGER NOT NULL,
	channel      TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'PENDING',
	scheduled_at TIMESTAMPTZ,
	sent_at      TIMESTAMPTZ,
	UNIQUE (sequence_id, step_number)
);

CREATE TABLE IF NOT EXISTS watchlist (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	url        TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS icp_profiles (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL UNIQUE,
	target_categories JSONB,
	target_stages     JSONB,
	keywords          JSONB,
	notes             TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_user_status ON opportunities(user_id, status);
CREATE INDEX IF NOT EXISTS idx_contacts_project ON contacts(project_id);
CREATE INDEX IF NOT EXISTS idx_steps_sequence ON sequence_steps(sequence_id);
CREATE INDEX IF NOT EXISTS idx_sequences_project ON sequences(project_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// isUniqueViolation reports a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Projects ---

const insertProjectSQL = `INSERT INTO projects
	(id, user_id, url, name, status, summary, category_tags, stage, target_users, pain_points, bd_angles, icp_score, mqa_score, playbook_matches, next_follow_up_at, last_contact_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

func (s *PostgresStore) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.ProjectNotContacted
	}

	_, err := s.db.Exec(ctx, insertProjectSQL,
		p.ID, p.UserID, p.URL, p.Name, string(p.Status), p.Summary,
		jsonArr(p.CategoryTags), p.Stage, p.TargetUsers, jsonArr(p.PainPoints),
		jsonArr(p.BDAngles), p.ICPScore, p.MQAScore, jsonArr(p.PlaybookMatches),
		p.NextFollowUpAt, p.LastContactAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "project url %s", p.URL)
		}
		return nil, eris.Wrap(err, "postgres: insert project")
	}
	return &p, nil
}

const selectProjectCols = `id, user_id, url, name, status, summary, category_tags, stage, target_users, pain_points, bd_angles, icp_score, mqa_score, playbook_matches, next_follow_up_at, last_contact_at, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var status string
	var tags, pains, angles, matches []byte
	err := row.Scan(
		&p.ID, &p.UserID, &p.URL, &p.Name, &status, &p.Summary,
		&tags, &p.Stage, &p.TargetUsers, &pains, &angles,
		&p.ICPScore, &p.MQAScore, &matches,
		&p.NextFollowUpAt, &p.LastContactAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan project")
	}
	p.Status = model.ProjectStatus(status)
	p.CategoryTags = fromJSONArr(tags)
	p.PainPoints = fromJSONArr(pains)
	p.BDAngles = fromJSONArr(angles)
	p.PlaybookMatches = fromJSONArr(matches)
	return &p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, userID, id string) (*model.Project, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	return scanProject(row)
}

func (s *PostgresStore) FindProjectByURL(ctx context.Context, userID, url string) (*model.Project, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE user_id = $1 AND url = $2`, userID, url)
	return scanProject(row)
}

func (s *PostgresStore) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list projects rows")
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p model.Project) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE projects SET name = $1, status = $2, summary = $3, category_tags = $4, stage = $5, target_users = $6, pain_points = $7, bd_angles = $8, icp_score = $9, mqa_score = $10, playbook_matches = $11, next_follow_up_at = $12, last_contact_at = $13, updated_at = $14
		 WHERE id = $15 AND user_id = $16`,
		p.Name, string(p.Status), p.Summary, jsonArr(p.CategoryTags), p.Stage,
		p.TargetUsers, jsonArr(p.PainPoints), jsonArr(p.BDAngles),
		p.ICPScore, p.MQAScore, jsonArr(p.PlaybookMatches),
		p.NextFollowUpAt, p.LastContactAt, time.Now().UTC(), p.ID, p.UserID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update project")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Opportunities ---

const insertOpportunitySQL = `INSERT INTO opportunities
	(id, user_id, url, source_type, source_label, raw_context, title, tags, icp_score, mqa_score, bd_angles, lead_score, lead_reasons, signal_strength, playbook_matches, status, project_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

func (s *PostgresStore) CreateOpportunity(ctx context.Context, o model.Opportunity) (*model.Opportunity, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = model.OpportunityNew
	}

	_, err := s.db.Exec(ctx, insertOpportunitySQL,
		o.ID, o.UserID, o.URL, string(o.SourceType), o.SourceLabel, o.RawContext,
		o.Title, jsonArr(o.Tags), o.ICPScore, o.MQAScore, jsonArr(o.BDAngles),
		o.LeadScore, jsonArr(o.LeadReasons), o.SignalStrength,
		jsonArr(o.PlaybookMatches), string(o.Status), nullable(o.ProjectID),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "opportunity url %s", o.URL)
		}
		return nil, eris.Wrap(err, "postgres: insert opportunity")
	}
	return &o, nil
}

const selectOpportunityCols = `id, user_id, url, source_type, source_label, raw_context, title, tags, icp_score, mqa_score, bd_angles, lead_score, lead_reasons, signal_strength, playbook_matches, status, project_id, created_at, updated_at`

func scanOpportunity(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	var sourceType, status string
	var projectID *string
	var tags, angles, reasons, matches []byte
	err := row.Scan(
		&o.ID, &o.UserID, &o.URL, &sourceType, &o.SourceLabel, &o.RawContext,
		&o.Title, &tags, &o.ICPScore, &o.MQAScore, &angles,
		&o.LeadScore, &reasons, &o.SignalStrength, &matches,
		&status, &projectID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan opportunity")
	}
	o.SourceType = model.SourceType(sourceType)
	o.Status = model.OpportunityStatus(status)
	if projectID != nil {
		o.ProjectID = *projectID
	}
	o.Tags = fromJSONArr(tags)
	o.BDAngles = fromJSONArr(angles)
	o.LeadReasons = fromJSONArr(reasons)
	o.PlaybookMatches = fromJSONArr(matches)
	return &o, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, userID, id string) (*model.Opportunity, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectOpportunityCols+` FROM opportunities WHERE id = $1 AND user_id = $2`, id, userID)
	return scanOpportunity(row)
}

func (s *PostgresStore) FindOpportunityByURL(ctx context.Context, userID, url string) (*model.Opportunity, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectOpportunityCols+` FROM opportunities WHERE user_id = $1 AND url = $2`, userID, url)
	return scanOpportunity(row)
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, userID string, status model.OpportunityStatus) ([]model.Opportunity, error) {
	query := `SELECT ` + selectOpportunityCols + ` FROM opportunities WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY lead_score DESC NULLS LAST, created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list opportunities rows")
}

func (s *PostgresStore) UpdateOpportunity(ctx context.Context, o model.Opportunity) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE opportunities SET title = $1, tags = $2, icp_score = $3, mqa_score = $4, bd_angles = $5, lead_score = $6, lead_reasons = $7, signal_strength = $8, playbook_matches = $9, status = $10, project_id = $11, updated_at = $12
		 WHERE id = $13 AND user_id = $14`,
		o.Title, jsonArr(o.Tags), o.ICPScore, o.MQAScore, jsonArr(o.BDAngles),
		o.LeadScore, jsonArr(o.LeadReasons), o.SignalStrength,
		jsonArr(o.PlaybookMatches), string(o.Status), nullable(o.ProjectID),
		time.Now().UTC(), o.ID, o.UserID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update opportunity")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Contacts ---

func (s *PostgresStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO contacts (id, project_id, name, role, email, linkedin_url, twitter_handle, telegram, persona, channel_preference, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.ProjectID, c.Name, c.Role, c.Email, c.LinkedinURL,
		c.TwitterHandle, c.Telegram, c.Persona, c.ChannelPreference,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert contact")
	}
	return &c, nil
}

const selectContactCols = `id, project_id, name, role, email, linkedin_url, twitter_handle, telegram, persona, channel_preference, created_at, updated_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.Name, &c.Role, &c.Email, &c.LinkedinURL,
		&c.TwitterHandle, &c.Telegram, &c.Persona, &c.ChannelPreference,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan contact")
	}
	return &c, nil
}

// FindContact translates the dedup filter into "same project AND any
// supplied handle equal". Must agree with contact.DedupFilter.Matches.
func (s *PostgresStore) FindContact(ctx context.Context, filter contact.DedupFilter) (*model.Contact, error) {
	conds := make([]string, 0, 4)
	args := []any{filter.ProjectID}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+` = $`+strconv.Itoa(len(args)))
	}
	add("email", filter.Email)
	add("linkedin_url", filter.LinkedinURL)
	add("twitter_handle", filter.TwitterHandle)
	add("telegram", filter.Telegram)
	if len(conds) == 0 {
		return nil, ErrNotFound
	}

	query := `SELECT ` + selectContactCols + ` FROM contacts WHERE project_id = $1 AND (` +
		strings.Join(conds, " OR ") + `) LIMIT 1`
	return scanContact(s.db.QueryRow(ctx, query, args...))
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	return scanContact(s.db.QueryRow(ctx,
		`SELECT `+selectContactCols+` FROM contacts WHERE id = $1`, id))
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c model.Contact) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contacts SET name = $1, role = $2, email = $3, linkedin_url = $4, twitter_handle = $5, telegram = $6, persona = $7, channel_preference = $8, updated_at = $9
		 WHERE id = $10`,
		c.Name, c.Role, c.Email, c.LinkedinURL, c.TwitterHandle, c.Telegram,
		c.Persona, c.ChannelPreference, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update contact")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Sequences and steps ---

func (s *PostgresStore) CreateSequence(ctx context.Context, seq model.Sequence, steps []model.SequenceStep) (*model.Sequence, error) {
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	seq.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx,
		`INSERT INTO sequences (id, user_id, project_id, contact_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		seq.ID, seq.UserID, seq.ProjectID, seq.ContactID, seq.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert sequence")
	}

	for i := range steps {
		st := &steps[i]
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		st.SequenceID = seq.ID
		if st.Status == "" {
			st.Status = model.StepPending
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO sequence_steps (id, sequence_id, step_number, channel, content, status, scheduled_at, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			st.ID, st.SequenceID, st.StepNumber, st.Channel, st.Content,
			string(st.Status), st.ScheduledAt, st.SentAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert step %d", st.StepNumber)
		}
	}
	return &seq, nil
}

const selectStepCols = `s.id, s.sequence_id, s.step_number, s.channel, s.content, s.status, s.scheduled_at, s.sent_at`

func scanStep(row pgx.Row) (*model.SequenceStep, error) {
	var st model.SequenceStep
	var status string
	err := row.Scan(&st.ID, &st.SequenceID, &st.StepNumber, &st.Channel,
		&st.Content, &status, &st.ScheduledAt, &st.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan step")
	}
	st.Status = model.StepStatus(status)
	return &st, nil
}

func (s *PostgresStore) ListSteps(ctx context.Context, userID, sequenceID string) ([]model.SequenceStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectStepCols+` FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.sequence_id = $1 AND q.user_id = $2
		 ORDER BY s.step_number`,
		sequenceID, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list steps")
	}
	defer rows.Close()

	var out []model.SequenceStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list steps rows")
}

func (s *PostgresStore) GetStep(ctx context.Context, userID, stepID string) (*model.SequenceStep, error) {
	return scanStep(s.db.QueryRow(ctx,
		`SELECT `+selectStepCols+` FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.id = $1 AND q.user_id = $2`,
		stepID, userID))
}

func (s *PostgresStore) StepContext(ctx context.Context, userID, stepID string) (*StepContext, error) {
	var sc StepContext
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT `+selectStepCols+`, q.project_id, q.contact_id FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.id = $1 AND q.user_id = $2`,
		stepID, userID,
	).Scan(&sc.Step.ID, &sc.Step.SequenceID, &sc.Step.StepNumber,
		&sc.Step.Channel, &sc.Step.Content, &status,
		&sc.Step.ScheduledAt, &sc.Step.SentAt, &sc.ProjectID, &sc.ContactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: step context")
	}
	sc.Step.Status = model.StepStatus(status)
	return &sc, nil
}

func (s *PostgresStore) ListPendingSteps(ctx context.Context, userID string, projectIDs []string) ([]sequence.PendingStep, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT q.project_id, s.scheduled_at FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE q.user_id = $1 AND s.status = 'PENDING' AND q.project_id = ANY($2)`,
		userID, projectIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending steps")
	}
	defer rows.Close()

	var out []sequence.PendingStep
	for rows.Next() {
		var ps sequence.PendingStep
		if err := rows.Scan(&ps.ProjectID, &ps.ScheduledAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending step")
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "postgres: pending steps rows")
}

// MarkStepStatus transitions a step out of PENDING. The status guard makes
// the transition single-shot: a concurrent writer that lost the race sees
// false.
func (s *PostgresStore) MarkStepStatus(ctx context.Context, userID, stepID string, status model.StepStatus, sentAt *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE sequence_steps SET status = $1, sent_at = $2
		 WHERE id = $3 AND status = 'PENDING'
		   AND sequence_id IN (SELECT id FROM sequences WHERE user_id = $4)`,
		string(status), sentAt, stepID, userID,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: mark step status")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RescheduleStep(ctx context.Context, userID, stepID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE sequence_steps SET scheduled_at = $1
		 WHERE id = $2 AND status = 'PENDING'
		   AND sequence_id IN (SELECT id FROM sequences WHERE user_id = $3)`,
		at, stepID, userID,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: reschedule step")
	}
	return tag.RowsAffected() > 0, nil
}

// --- Watchlist ---

func (s *PostgresStore) ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, url, label, created_at FROM watchlist WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list watchlist")
	}
	defer rows.Close()

	var out []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.URL, &e.Label, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan watchlist entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: watchlist rows")
}

func (s *PostgresStore) AddWatchlistEntry(ctx context.Context, e model.WatchlistEntry) (*model.WatchlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO watchlist (id, user_id, url, label, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.URL, e.Label, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrConflict, "watchlist url %s", e.URL)
		}
		return nil, eris.Wrap(err, "postgres: insert watchlist entry")
	}
	return &e, nil
}

// --- ICP profile ---

func (s *PostgresStore) GetICPProfile(ctx context.Context, userID string) (*model.ICPProfile, error) {
	var p model.ICPProfile
	var cats, stages, keywords []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, target_categories, target_stages, keywords, notes FROM icp_profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.ID, &p.UserID, &cats, &stages, &keywords, &p.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get icp profile")
	}
	p.TargetCategories = fromJSONArr(cats)
	p.TargetStages = fromJSONArr(stages)
	p.Keywords = fromJSONArr(keywords)
	return &p, nil
}

// --- helpers ---

// jsonArr marshals a string slice for a JSONB column; nil stays NULL.
func jsonArr(ss []string) []byte {
	if ss == nil {
		return nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return nil
	}
	return b
}

func fromJSONArr(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
