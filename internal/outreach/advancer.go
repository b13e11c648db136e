// Package outreach drives sequence execution: picking the next step for a
// cadence and applying send/skip/reschedule actions with their bookkeeping.
package outreach

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chainreach/prospect-cli/internal/model"
	"github.com/chainreach/prospect-cli/internal/sequence"
	"github.com/chainreach/prospect-cli/internal/store"
)

// Action is a user-initiated step transition.
type Action string

const (
	ActionSent       Action = "sent"
	ActionSkip       Action = "skip"
	ActionReschedule Action = "reschedule"
)

// ErrAlreadyActioned is returned when a step was transitioned out of PENDING
// by a concurrent request.
var ErrAlreadyActioned = eris.New("outreach: step already actioned")

// Advancer applies outreach actions to sequence steps.
type Advancer struct {
	store store.Store
	now   func() time.Time
}

func NewAdvancer(st store.Store) *Advancer {
	return &Advancer{store: st, now: time.Now}
}

// Next returns the step to execute now for a sequence, or nil when every
// step is done.
func (a *Advancer) Next(ctx context.Context, userID, sequenceID string) (*model.SequenceStep, error) {
	steps, err := a.store.ListSteps(ctx, userID, sequenceID)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: list steps")
	}
	return sequence.PickNext(steps, a.now().UTC()), nil
}

// Act applies an action to a pending step. at is required for reschedule and
// ignored otherwise. Returns the step after the transition.
func (a *Advancer) Act(ctx context.Context, userID, stepID string, action Action, at *time.Time) (*model.SequenceStep, error) {
	switch action {
	case ActionSent:
		return a.markSent(ctx, userID, stepID)
	case ActionSkip:
		ok, err := a.store.MarkStepStatus(ctx, userID, stepID, model.StepSkipped, nil)
		if err != nil {
			return nil, eris.Wrap(err, "outreach: skip step")
		}
		if !ok {
			return nil, ErrAlreadyActioned
		}
		return a.store.GetStep(ctx, userID, stepID)
	case ActionReschedule:
		if at == nil {
			return nil, eris.New("outreach: reschedule requires a time")
		}
		ok, err := a.store.RescheduleStep(ctx, userID, stepID, at.UTC())
		if err != nil {
			return nil, eris.Wrap(err, "outreach: reschedule step")
		}
		if !ok {
			return nil, ErrAlreadyActioned
		}
		return a.store.GetStep(ctx, userID, stepID)
	default:
		return nil, eris.Errorf("outreach: unknown action %q", action)
	}
}

// markSent transitions the step to SENT, then records the send on the
// contact's channel preference and stamps the project's contact timestamps.
// Bookkeeping failures are logged, not returned: the send already happened.
func (a *Advancer) markSent(ctx context.Context, userID, stepID string) (*model.SequenceStep, error) {
	now := a.now().UTC()
	ok, err := a.store.MarkStepStatus(ctx, userID, stepID, model.StepSent, &now)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: mark step sent")
	}
	if !ok {
		return nil, ErrAlreadyActioned
	}

	sc, err := a.store.StepContext(ctx, userID, stepID)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: step context")
	}

	if err := a.recordChannel(ctx, sc); err != nil {
		zap.L().Warn("outreach: channel preference not recorded",
			zap.String("step_id", stepID),
			zap.Error(err),
		)
	}
	if err := a.stampProject(ctx, userID, sc, now); err != nil {
		zap.L().Warn("outreach: project follow-up not stamped",
			zap.String("project_id", sc.ProjectID),
			zap.Error(err),
		)
	}

	return &sc.Step, nil
}

func (a *Advancer) recordChannel(ctx context.Context, sc *store.StepContext) error {
	c, err := a.store.GetContact(ctx, sc.ContactID)
	if err != nil {
		return err
	}
	c.ChannelPreference = sequence.RecordSend(c.ChannelPreference, sc.Step.Channel)
	return a.store.UpdateContact(ctx, *c)
}

func (a *Advancer) stampProject(ctx context.Context, userID string, sc *store.StepContext, now time.Time) error {
	p, err := a.store.GetProject(ctx, userID, sc.ProjectID)
	if err != nil {
		return err
	}
	p.LastContactAt = &now
	if p.Status == model.ProjectNotContacted {
		p.Status = model.ProjectContacted
	}

	// Next follow-up comes from the earliest remaining pending step.
	steps, err := a.store.ListSteps(ctx, userID, sc.Step.SequenceID)
	if err != nil {
		return err
	}
	if next := sequence.PickNext(steps, now); next != nil {
		p.NextFollowUpAt = next.ScheduledAt
	} else {
		p.NextFollowUpAt = nil
	}

	return a.store.UpdateProject(ctx, *p)
}
