package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainreach/prospect-cli/internal/model"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func tsp(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed := ts(t, value)
	return &parsed
}

func TestPickNext_NoPendingSteps(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "1", Status: model.StepSent},
		{ID: "2", Status: model.StepSkipped},
	}
	assert.Nil(t, PickNext(steps, now))
}

func TestPickNext_EarliestOverdueWins(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "later-overdue", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-09T00:00:00Z")},
		{ID: "earlier-overdue", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-08T00:00:00Z")},
		{ID: "future", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-12T00:00:00Z")},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Equal(t, "earlier-overdue", got.ID)
}

func TestPickNext_OverdueBeatsFuture(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "future", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-11T00:00:00Z")},
		{ID: "overdue", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-09T00:00:00Z")},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Equal(t, "overdue", got.ID)
}

func TestPickNext_EarliestFutureWhenNothingOverdue(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "far", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-20T00:00:00Z")},
		{ID: "near", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-12T00:00:00Z")},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Equal(t, "near", got.ID)
}

func TestPickNext_UnscheduledFallsBackToInputOrder(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "done", Status: model.StepSent},
		{ID: "first-pending", Status: model.StepPending},
		{ID: "second-pending", Status: model.StepPending},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Equal(t, "first-pending", got.ID)
}

func TestPickNext_ScheduledBeatsUnscheduled(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "unscheduled", Status: model.StepPending},
		{ID: "scheduled", Status: model.StepPending, ScheduledAt: tsp(t, "2024-01-15T00:00:00Z")},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Equal(t, "scheduled", got.ID)
}

func TestPickNext_ReturnsPointerIntoInput(t *testing.T) {
	now := ts(t, "2024-01-10T12:00:00Z")
	steps := []model.SequenceStep{
		{ID: "only", Status: model.StepPending},
	}

	got := PickNext(steps, now)
	require.NotNil(t, got)
	assert.Same(t, &steps[0], got)
}
