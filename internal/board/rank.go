// Package board orders prospect accounts for the dashboard view.
package board

import (
	"sort"
	"time"
)

// Entry is the board view of one project: its last update plus the due-meta
// computed from its pending sequence steps.
type Entry struct {
	ID             string
	UpdatedAt      time.Time
	HasOverdueStep bool
	NextStepDueAt  *time.Time
}

// Rank returns the entries ordered by outreach priority. The input is not
// mutated and the sort is stable.
//
// The whole ordering lives in one comparator so it stays a valid
// strict-weak ordering for any sort algorithm.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return higherPriority(out[i], out[j])
	})
	return out
}

// higherPriority reports whether a sorts strictly before b.
//
//  1. both overdue: earlier next due date first (missing due date sorts
//     as the zero time, i.e. earliest)
//  2. exactly one overdue: the overdue one first
//  3. both have a future due date: earlier first
//  4. only one has a future due date: that one first
//  5. neither has a due date: more recently updated first
func higherPriority(a, b Entry) bool {
	if a.HasOverdueStep && b.HasOverdueStep {
		return dueOrZero(a).Before(dueOrZero(b))
	}
	if a.HasOverdueStep != b.HasOverdueStep {
		return a.HasOverdueStep
	}

	switch {
	case a.NextStepDueAt != nil && b.NextStepDueAt != nil:
		return a.NextStepDueAt.Before(*b.NextStepDueAt)
	case a.NextStepDueAt != nil:
		return true
	case b.NextStepDueAt != nil:
		return false
	}

	return a.UpdatedAt.After(b.UpdatedAt)
}

func dueOrZero(e Entry) time.Time {
	if e.NextStepDueAt == nil {
		return time.Time{}
	}
	return *e.NextStepDueAt
}
