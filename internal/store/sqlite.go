package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/chainreach/prospect-cli/internal/contact"
	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/sequence"
)

// SQLiteStore implements Store on a local SQLite file. Used for single-user
// CLI runs where Postgres is overkill.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	// Single writer; WAL keeps readers unblocked during scans.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	url               TEXT NOT NULL,
	name              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'NOT_CONTACTED',
	summary           TEXT NOT NULL DEFAULT '',
	category_tags     TEXT,
	stage             TEXT NOT NULL DEFAULT '',
	target_users      TEXT NOT NULL DEFAULT '',
	pain_points       TEXT,
	bd_angles         TEXT,
	icp_score         REAL,
	mqa_score         REAL,
	playbook_matches  TEXT,
	next_follow_up_at TIMESTAMP,
	last_contact_at   TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL,
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
	tags             TEXT,
	icp_score        REAL,
	mqa_score        REAL,
	bd_angles        TEXT,
	lead_score       REAL,
	lead_reasons     TEXT,
	signal_strength  TEXT NOT NULL DEFAULT '',
	playbook_matches TEXT,
	status           TEXT NOT NULL DEFAULT 'NEW',
	project_id       TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
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
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sequences (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	project_id TEXT NOT NULL REFERENCES projects(id),
	contact_id TEXT NOT NULL REFERENCES contacts(id),
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sequence_steps (
	id           TEXT PRIMARY KEY,
	sequence_id  TEXT NOT NULL REFERENCES sequences(id),
	step_number  INTEGER NOT NULL,
	channel      TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'PENDING',
	scheduled_at TIMESTAMP,
	sent_at      TIMESTAMP,
	UNIQUE (sequence_id, step_number)
);

CREATE TABLE IF NOT EXISTS watchlist (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	url        TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS icp_profiles (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL UNIQUE,
	target_categories TEXT,
	target_stages     TEXT,
	keywords          TEXT,
	notes             TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_user_status ON opportunities(user_id, status);
CREATE INDEX IF NOT EXISTS idx_contacts_project ON contacts(project_id);
CREATE INDEX IF NOT EXISTS idx_steps_sequence ON sequence_steps(sequence_id);
CREATE INDEX IF NOT EXISTS idx_sequences_project ON sequences(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = model.ProjectNotContacted
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, url, name, status, summary, category_tags, stage, target_users, pain_points, bd_angles, icp_score, mqa_score, playbook_matches, next_follow_up_at, last_contact_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.URL, p.Name, string(p.Status), p.Summary,
		jsonArrText(p.CategoryTags), p.Stage, p.TargetUsers,
		jsonArrText(p.PainPoints), jsonArrText(p.BDAngles),
		nullFloat(p.ICPScore), nullFloat(p.MQAScore), jsonArrText(p.PlaybookMatches),
		nullTime(p.NextFollowUpAt), nullTime(p.LastContactAt), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrConflict, "project url %s", p.URL)
		}
		return nil, eris.Wrap(err, "sqlite: insert project")
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjectRow(row rowScanner) (*model.Project, error) {
	var p model.Project
	var status string
	var tags, pains, angles, matches sql.NullString
	var icp, mqa sql.NullFloat64
	var nextAt, lastAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.UserID, &p.URL, &p.Name, &status, &p.Summary,
		&tags, &p.Stage, &p.TargetUsers, &pains, &angles,
		&icp, &mqa, &matches, &nextAt, &lastAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan project")
	}
	p.Status = model.ProjectStatus(status)
	p.CategoryTags = fromJSONText(tags)
	p.PainPoints = fromJSONText(pains)
	p.BDAngles = fromJSONText(angles)
	p.PlaybookMatches = fromJSONText(matches)
	p.ICPScore = floatPtr(icp)
	p.MQAScore = floatPtr(mqa)
	p.NextFollowUpAt = timePtr(nextAt)
	p.LastContactAt = timePtr(lastAt)
	return &p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, userID, id string) (*model.Project, error) {
	return scanProjectRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE id = ? AND user_id = ?`, id, userID))
}

func (s *SQLiteStore) FindProjectByURL(ctx context.Context, userID, url string) (*model.Project, error) {
	return scanProjectRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE user_id = ? AND url = ?`, userID, url))
}

func (s *SQLiteStore) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectProjectCols+` FROM projects WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list projects rows")
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p model.Project) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, status = ?, summary = ?, category_tags = ?, stage = ?, target_users = ?, pain_points = ?, bd_angles = ?, icp_score = ?, mqa_score = ?, playbook_matches = ?, next_follow_up_at = ?, last_contact_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Name, string(p.Status), p.Summary, jsonArrText(p.CategoryTags), p.Stage,
		p.TargetUsers, jsonArrText(p.PainPoints), jsonArrText(p.BDAngles),
		nullFloat(p.ICPScore), nullFloat(p.MQAScore), jsonArrText(p.PlaybookMatches),
		nullTime(p.NextFollowUpAt), nullTime(p.LastContactAt), time.Now().UTC(),
		p.ID, p.UserID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update project")
	}
	return affectedOrNotFound(res)
}

// --- Opportunities ---

func (s *SQLiteStore) CreateOpportunity(ctx context.Context, o model.Opportunity) (*model.Opportunity, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = model.OpportunityNew
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO opportunities (id, user_id, url, source_type, source_label, raw_context, title, tags, icp_score, mqa_score, bd_angles, lead_score, lead_reasons, signal_strength, playbook_matches, status, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.URL, string(o.SourceType), o.SourceLabel, o.RawContext,
		o.Title, jsonArrText(o.Tags), nullFloat(o.ICPScore), nullFloat(o.MQAScore),
		jsonArrText(o.BDAngles), nullFloat(o.LeadScore), jsonArrText(o.LeadReasons),
		o.SignalStrength, jsonArrText(o.PlaybookMatches), string(o.Status),
		nullString(o.ProjectID), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrConflict, "opportunity url %s", o.URL)
		}
		return nil, eris.Wrap(err, "sqlite: insert opportunity")
	}
	return &o, nil
}

func scanOpportunityRow(row rowScanner) (*model.Opportunity, error) {
	var o model.Opportunity
	var sourceType, status string
	var projectID sql.NullString
	var tags, angles, reasons, matches sql.NullString
	var icp, mqa, lead sql.NullFloat64
	err := row.Scan(
		&o.ID, &o.UserID, &o.URL, &sourceType, &o.SourceLabel, &o.RawContext,
		&o.Title, &tags, &icp, &mqa, &angles, &lead, &reasons,
		&o.SignalStrength, &matches, &status, &projectID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan opportunity")
	}
	o.SourceType = model.SourceType(sourceType)
	o.Status = model.OpportunityStatus(status)
	o.ProjectID = projectID.String
	o.Tags = fromJSONText(tags)
	o.BDAngles = fromJSONText(angles)
	o.LeadReasons = fromJSONText(reasons)
	o.PlaybookMatches = fromJSONText(matches)
	o.ICPScore = floatPtr(icp)
	o.MQAScore = floatPtr(mqa)
	o.LeadScore = floatPtr(lead)
	return &o, nil
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, userID, id string) (*model.Opportunity, error) {
	return scanOpportunityRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectOpportunityCols+` FROM opportunities WHERE id = ? AND user_id = ?`, id, userID))
}

func (s *SQLiteStore) FindOpportunityByURL(ctx context.Context, userID, url string) (*model.Opportunity, error) {
	return scanOpportunityRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectOpportunityCols+` FROM opportunities WHERE user_id = ? AND url = ?`, userID, url))
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, userID string, status model.OpportunityStatus) ([]model.Opportunity, error) {
	query := `SELECT ` + selectOpportunityCols + ` FROM opportunities WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY lead_score IS NULL, lead_score DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		o, err := scanOpportunityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list opportunities rows")
}

func (s *SQLiteStore) UpdateOpportunity(ctx context.Context, o model.Opportunity) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET title = ?, tags = ?, icp_score = ?, mqa_score = ?, bd_angles = ?, lead_score = ?, lead_reasons = ?, signal_strength = ?, playbook_matches = ?, status = ?, project_id = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		o.Title, jsonArrText(o.Tags), nullFloat(o.ICPScore), nullFloat(o.MQAScore),
		jsonArrText(o.BDAngles), nullFloat(o.LeadScore), jsonArrText(o.LeadReasons),
		o.SignalStrength, jsonArrText(o.PlaybookMatches), string(o.Status),
		nullString(o.ProjectID), time.Now().UTC(), o.ID, o.UserID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update opportunity")
	}
	return affectedOrNotFound(res)
}

// --- Contacts ---

func (s *SQLiteStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, project_id, name, role, email, linkedin_url, twitter_handle, telegram, persona, channel_preference, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.Role, c.Email, c.LinkedinURL,
		c.TwitterHandle, c.Telegram, c.Persona, c.ChannelPreference,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert contact")
	}
	return &c, nil
}

func scanContactRow(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.ProjectID, &c.Name, &c.Role, &c.Email, &c.LinkedinURL,
		&c.TwitterHandle, &c.Telegram, &c.Persona, &c.ChannelPreference,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan contact")
	}
	return &c, nil
}

func (s *SQLiteStore) FindContact(ctx context.Context, filter contact.DedupFilter) (*model.Contact, error) {
	var conds []string
	args := []any{filter.ProjectID}
	add := func(col, val string) {
		if val == "" {
			return
		}
		conds = append(conds, col+` = ?`)
		args = append(args, val)
	}
	add("email", filter.Email)
	add("linkedin_url", filter.LinkedinURL)
	add("twitter_handle", filter.TwitterHandle)
	add("telegram", filter.Telegram)
	if len(conds) == 0 {
		return nil, ErrNotFound
	}

	query := `SELECT ` + selectContactCols + ` FROM contacts WHERE project_id = ? AND (` +
		strings.Join(conds, " OR ") + `) LIMIT 1`
	return scanContactRow(s.db.QueryRowContext(ctx, query, args...))
}

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	return scanContactRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectContactCols+` FROM contacts WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, c model.Contact) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, role = ?, email = ?, linkedin_url = ?, twitter_handle = ?, telegram = ?, persona = ?, channel_preference = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Role, c.Email, c.LinkedinURL, c.TwitterHandle, c.Telegram,
		c.Persona, c.ChannelPreference, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update contact")
	}
	return affectedOrNotFound(res)
}

// --- Sequences and steps ---

func (s *SQLiteStore) CreateSequence(ctx context.Context, seq model.Sequence, steps []model.SequenceStep) (*model.Sequence, error) {
	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	seq.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sequences (id, user_id, project_id, contact_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		seq.ID, seq.UserID, seq.ProjectID, seq.ContactID, seq.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert sequence")
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sequence_steps (id, sequence_id, step_number, channel, content, status, scheduled_at, sent_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, st.SequenceID, st.StepNumber, st.Channel, st.Content,
			string(st.Status), nullTime(st.ScheduledAt), nullTime(st.SentAt),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert step %d", st.StepNumber)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit sequence")
	}
	return &seq, nil
}

func scanStepRow(row rowScanner) (*model.SequenceStep, error) {
	var st model.SequenceStep
	var status string
	var scheduledAt, sentAt sql.NullTime
	err := row.Scan(&st.ID, &st.SequenceID, &st.StepNumber, &st.Channel,
		&st.Content, &status, &scheduledAt, &sentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan step")
	}
	st.Status = model.StepStatus(status)
	st.ScheduledAt = timePtr(scheduledAt)
	st.SentAt = timePtr(sentAt)
	return &st, nil
}

func (s *SQLiteStore) ListSteps(ctx context.Context, userID, sequenceID string) ([]model.SequenceStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectStepCols+` FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.sequence_id = ? AND q.user_id = ?
		 ORDER BY s.step_number`,
		sequenceID, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list steps")
	}
	defer rows.Close()

	var out []model.SequenceStep
	for rows.Next() {
		st, err := scanStepRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list steps rows")
}

func (s *SQLiteStore) GetStep(ctx context.Context, userID, stepID string) (*model.SequenceStep, error) {
	return scanStepRow(s.db.QueryRowContext(ctx,
		`SELECT `+selectStepCols+` FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.id = ? AND q.user_id = ?`,
		stepID, userID))
}

func (s *SQLiteStore) StepContext(ctx context.Context, userID, stepID string) (*StepContext, error) {
	var sc StepContext
	var status string
	var scheduledAt, sentAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT `+selectStepCols+`, q.project_id, q.contact_id FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE s.id = ? AND q.user_id = ?`,
		stepID, userID,
	).Scan(&sc.Step.ID, &sc.Step.SequenceID, &sc.Step.StepNumber,
		&sc.Step.Channel, &sc.Step.Content, &status,
		&scheduledAt, &sentAt, &sc.ProjectID, &sc.ContactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: step context")
	}
	sc.Step.Status = model.StepStatus(status)
	sc.Step.ScheduledAt = timePtr(scheduledAt)
	sc.Step.SentAt = timePtr(sentAt)
	return &sc, nil
}

func (s *SQLiteStore) ListPendingSteps(ctx context.Context, userID string, projectIDs []string) ([]sequence.PendingStep, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(projectIDs)), ", ")
	args := []any{userID}
	for _, id := range projectIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT q.project_id, s.scheduled_at FROM sequence_steps s
		 JOIN sequences q ON q.id = s.sequence_id
		 WHERE q.user_id = ? AND s.status = 'PENDING' AND q.project_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending steps")
	}
	defer rows.Close()

	var out []sequence.PendingStep
	for rows.Next() {
		var ps sequence.PendingStep
		var scheduledAt sql.NullTime
		if err := rows.Scan(&ps.ProjectID, &scheduledAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending step")
		}
		ps.ScheduledAt = timePtr(scheduledAt)
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pending steps rows")
}

func (s *SQLiteStore) MarkStepStatus(ctx context.Context, userID, stepID string, status model.StepStatus, sentAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sequence_steps SET status = ?, sent_at = ?
		 WHERE id = ? AND status = 'PENDING'
		   AND sequence_id IN (SELECT id FROM sequences WHERE user_id = ?)`,
		string(status), nullTime(sentAt), stepID, userID,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: mark step status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: mark step rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) RescheduleStep(ctx context.Context, userID, stepID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sequence_steps SET scheduled_at = ?
		 WHERE id = ? AND status = 'PENDING'
		   AND sequence_id IN (SELECT id FROM sequences WHERE user_id = ?)`,
		at, stepID, userID,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: reschedule step")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: reschedule rows affected")
	}
	return n > 0, nil
}

// --- Watchlist ---

func (s *SQLiteStore) ListWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, url, label, created_at FROM watchlist WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list watchlist")
	}
	defer rows.Close()

	var out []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.URL, &e.Label, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watchlist entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: watchlist rows")
}

func (s *SQLiteStore) AddWatchlistEntry(ctx context.Context, e model.WatchlistEntry) (*model.WatchlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist (id, user_id, url, label, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.URL, e.Label, e.CreatedAt,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrConflict, "watchlist url %s", e.URL)
		}
		return nil, eris.Wrap(err, "sqlite: insert watchlist entry")
	}
	return &e, nil
}

// --- ICP profile ---

func (s *SQLiteStore) GetICPProfile(ctx context.Context, userID string) (*model.ICPProfile, error) {
	var p model.ICPProfile
	var cats, stages, keywords sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, target_categories, target_stages, keywords, notes FROM icp_profiles WHERE user_id = ?`,
		userID,
	).Scan(&p.ID, &p.UserID, &cats, &stages, &keywords, &p.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get icp profile")
	}
	p.TargetCategories = fromJSONText(cats)
	p.TargetStages = fromJSONText(stages)
	p.Keywords = fromJSONText(keywords)
	return &p, nil
}

// --- helpers ---

func jsonArrText(ss []string) any {
	b := jsonArr(ss)
	if b == nil {
		return nil
	}
	return string(b)
}

func fromJSONText(s sql.NullString) []string {
	if !s.Valid {
		return nil
	}
	return fromJSONArr([]byte(s.String))
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
