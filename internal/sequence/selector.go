package sequence

import (
	"time"

	"github.com/chainreach/prospect-cli/internal/model"
)

// PickNext selects the single actionable step from a snapshot of a
// sequence's steps. Strict priority order:
//
//  1. only PENDING steps are considered; none pending returns nil
//  2. an overdue step (scheduled before now) with the earliest ScheduledAt
//  3. a future-scheduled step with the earliest ScheduledAt
//  4. the first pending step in input order (no schedules at all)
//
// Pure function over the snapshot; the caller fetches the candidate set and
// persists whatever action it takes on the result.
func PickNext(steps []model.SequenceStep, now time.Time) *model.SequenceStep {
	var overdue, future *model.SequenceStep
	var firstPending *model.SequenceStep

	for i := range steps {
		s := &steps[i]
		if s.Status != model.StepPending {
			continue
		}
		if firstPending == nil {
			firstPending = s
		}
		if s.ScheduledAt == nil {
			continue
		}
		if s.ScheduledAt.Before(now) {
			if overdue == nil || s.ScheduledAt.Before(*overdue.ScheduledAt) {
				overdue = s
			}
			continue
		}
		if future == nil || s.ScheduledAt.Before(*future.ScheduledAt) {
			future = s
		}
	}

	switch {
	case overdue != nil:
		return overdue
	case future != nil:
		return future
	default:
		return firstPending
	}
}
