package sequence

import "time"

// PendingStep is a raw pending-step row joined to its owning project,
// as returned by the store for due-meta aggregation.
type PendingStep struct {
	ProjectID   string
	ScheduledAt *time.Time
}

// DueMeta summarizes pending-step schedules for one project.
type DueMeta struct {
	NextDueAt    *time.Time
	HasOverdue   bool
	OverdueCount int
}

// BuildMeta aggregates pending-step rows into per-project due summaries.
// Every requested project ID gets an entry, even with no steps. Steps for
// unknown project IDs are ignored. O(steps + projectIDs).
func BuildMeta(steps []PendingStep, projectIDs []string, now time.Time) map[string]DueMeta {
	meta := make(map[string]DueMeta, len(projectIDs))
	for _, id := range projectIDs {
		meta[id] = DueMeta{}
	}

	for _, s := range steps {
		m, ok := meta[s.ProjectID]
		if !ok || s.ScheduledAt == nil {
			continue
		}
		if m.NextDueAt == nil || s.ScheduledAt.Before(*m.NextDueAt) {
			at := *s.ScheduledAt
			m.NextDueAt = &at
		}
		if s.ScheduledAt.Before(now) {
			m.HasOverdue = true
			m.OverdueCount++
		}
		meta[s.ProjectID] = m
	}

	return meta
}
