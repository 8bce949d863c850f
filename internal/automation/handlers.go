package automation

import (
	"context"
	"fmt"
	"time"

	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
	"wedding-automation/internal/trigger"
)

// RsvpChange is a guest's RSVP moving from Previous to New.
type RsvpChange struct {
	GuestID  string
	EventID  string
	New      models.RSVPStatus
	Previous models.RSVPStatus
}

// NotificationSent is a message having reached a guest.
type NotificationSent struct {
	GuestID string
	EventID string
	Type    models.NotificationType
	SentAt  time.Time
}

// OnRsvpStatusChanged reacts to a guest answering. An answer cancels the
// guest's pending no-response nudges, runs the event's RSVP flows right
// away, and for an acceptance arms the time-based flows that only apply
// to confirmed guests.
func (e *Engine) OnRsvpStatusChanged(ctx context.Context, c RsvpChange) (Report, error) {
	var report Report

	kind, ok := trigger.ForRSVP(c.New)
	if !ok || c.New == c.Previous {
		return report, nil
	}

	logger := e.log.With().
		Str("guest_id", c.GuestID).
		Str("rsvp", string(c.New)).
		Logger()

	skipped, err := e.repo.SkipPendingExecutions(ctx, models.SkipFilter{
		GuestID:  c.GuestID,
		Triggers: trigger.KindsOf(trigger.FamilyNoResponse),
	}, "guest responded", e.now())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to skip no-response executions")
		report.Errors++
	}
	report.Skipped += skipped
	for i := 0; i < skipped; i++ {
		e.metrics.transition(models.ExecutionSkipped)
	}

	flows, err := e.repo.ActiveFlows(ctx, c.EventID, kind)
	if err != nil {
		return report, fmt.Errorf("list %s flows: %w", kind, err)
	}
	for i := range flows {
		flow := &flows[i]
		x, claimed, err := e.claimForEvent(ctx, flow, c.GuestID)
		if err != nil {
			logger.Error().Err(err).Str("flow_id", flow.ID).Msg("Failed to start RSVP flow")
			report.Errors++
			continue
		}
		if !claimed {
			report.Unchanged++
			continue
		}
		report.Created++

		out, err := e.run(ctx, x, flow)
		if err != nil {
			logger.Error().Err(err).Str("flow_id", flow.ID).Msg("Failed to record execution result")
			report.Errors++
			continue
		}
		report.finished(&out.Execution)
	}

	if c.New == models.RSVPAccepted {
		armed, err := e.armConfirmed(ctx, c.EventID, c.GuestID)
		if err != nil {
			return report, err
		}
		report.add(armed)
	}

	return report, nil
}

// claimForEvent creates the pair's record directly in PROCESSING. An
// existing PENDING record is claimed instead; any other state means the
// flow already ran for the guest.
func (e *Engine) claimForEvent(ctx context.Context, flow *models.Flow, guestID string) (*models.Execution, bool, error) {
	now := e.now().UTC()
	x := &models.Execution{
		FlowID:       flow.ID,
		GuestID:      guestID,
		Status:       models.ExecutionProcessing,
		ScheduledFor: &now,
		StartedAt:    &now,
		CreatedAt:    now,
	}
	err := e.repo.CreateExecution(ctx, x)
	if err == nil {
		e.metrics.transition(models.ExecutionProcessing)
		return x, true, nil
	}
	if !storage.IsConflict(err) {
		return nil, false, err
	}

	e.metrics.conflict()
	existing, err := e.repo.ExecutionFor(ctx, flow.ID, guestID)
	if err != nil {
		return nil, false, err
	}
	if existing.Status != models.ExecutionPending {
		return nil, false, nil
	}
	ok, err := e.claim(ctx, existing, models.ExecutionPending)
	if err != nil || !ok {
		return nil, false, err
	}
	return existing, true, nil
}

// armConfirmed schedules the event's relative and window flows for a
// guest who just confirmed.
func (e *Engine) armConfirmed(ctx context.Context, eventID, guestID string) (Report, error) {
	var report Report

	kinds := append(trigger.KindsOf(trigger.FamilyRelative), trigger.KindsOf(trigger.FamilyWindow)...)
	flows, err := e.repo.ActiveFlows(ctx, eventID, kinds...)
	if err != nil {
		return report, fmt.Errorf("list scheduled flows: %w", err)
	}
	if len(flows) == 0 {
		return report, nil
	}

	gc, err := e.guestContext(ctx, guestID)
	if err != nil {
		return report, fmt.Errorf("load guest context: %w", err)
	}
	for i := range flows {
		if err := e.arm(ctx, &flows[i], gc, &report); err != nil {
			e.log.Error().Err(err).
				Str("flow_id", flows[i].ID).
				Str("guest_id", guestID).
				Msg("Failed to schedule flow")
			report.Errors++
		}
	}
	return report, nil
}

// arm evaluates a time-based flow for one guest and stores a PENDING
// record when it fires now or later.
func (e *Engine) arm(ctx context.Context, flow *models.Flow, gc models.GuestContext, report *Report) error {
	now := e.now()
	d, err := trigger.Evaluate(flow.Trigger, gc, flow.DelayHours, now)
	if err != nil {
		return err
	}

	var at time.Time
	switch {
	case d.Fire:
		at = now
	case d.ScheduledFor != nil && d.ScheduledFor.After(now):
		at = *d.ScheduledFor
	default:
		report.Skipped++
		e.log.Debug().
			Str("flow_id", flow.ID).
			Str("guest_id", gc.GuestID).
			Str("reason", d.Reason).
			Msg("Flow not scheduled")
		return nil
	}

	outcome, err := e.repo.UpsertPendingExecution(ctx, flow.ID, gc.GuestID, at)
	if err != nil {
		return err
	}
	report.upserted(outcome)
	return nil
}

// OnNotificationSent stamps the guest's last notification and re-arms the
// event's no-response flows from it while the guest has not answered.
func (e *Engine) OnNotificationSent(ctx context.Context, n NotificationSent) (Report, error) {
	var report Report

	if err := e.repo.MarkNotified(ctx, n.GuestID, n.SentAt); err != nil {
		return report, fmt.Errorf("mark notified: %w", err)
	}

	flows, err := e.repo.ActiveFlows(ctx, n.EventID, trigger.KindsOf(trigger.FamilyNoResponse)...)
	if err != nil {
		return report, fmt.Errorf("list no-response flows: %w", err)
	}
	if len(flows) == 0 {
		return report, nil
	}

	guest, err := e.repo.Guest(ctx, n.GuestID)
	if err != nil {
		return report, fmt.Errorf("load guest: %w", err)
	}
	if guest.RSVPStatus != models.RSVPPending {
		return report, nil
	}
	event, err := e.repo.Event(ctx, guest.EventID)
	if err != nil {
		return report, fmt.Errorf("load event: %w", err)
	}

	now := e.now()
	for i := range flows {
		flow := &flows[i]
		at, ok, err := trigger.ScheduledTime(flow.Trigger, event.LocalStart(), &n.SentAt, flow.DelayHours, now)
		if err != nil {
			e.log.Error().Err(err).Str("flow_id", flow.ID).Msg("Failed to compute scheduled time")
			report.Errors++
			continue
		}
		if !ok {
			report.Skipped++
			continue
		}

		outcome, err := e.repo.UpsertPendingExecution(ctx, flow.ID, n.GuestID, at)
		if err != nil {
			e.log.Error().Err(err).
				Str("flow_id", flow.ID).
				Str("guest_id", n.GuestID).
				Msg("Failed to schedule no-response flow")
			report.Errors++
			continue
		}
		report.upserted(outcome)
	}

	e.log.Debug().
		Str("guest_id", n.GuestID).
		Str("type", string(n.Type)).
		Stringer("report", report).
		Msg("Notification recorded")
	return report, nil
}

// OnFlowActivated bootstraps a newly ACTIVE flow by scheduling it for
// every guest on the event. RSVP flows need no bootstrap. Guests that
// already have a record keep it.
func (e *Engine) OnFlowActivated(ctx context.Context, flowID string) (Report, error) {
	var report Report

	flow, err := e.repo.Flow(ctx, flowID)
	if err != nil {
		return report, err
	}
	if flow.Status != models.FlowActive {
		return report, fmt.Errorf("%w: %s is %s", ErrFlowNotActive, flow.ID, flow.Status)
	}
	t, err := trigger.Lookup(flow.Trigger)
	if err != nil {
		return report, err
	}
	if t.Family() == trigger.FamilyEvent {
		return report, nil
	}

	event, err := e.repo.Event(ctx, flow.EventID)
	if err != nil {
		return report, err
	}
	guests, err := e.repo.Guests(ctx, models.GuestFilter{EventID: flow.EventID})
	if err != nil {
		return report, fmt.Errorf("list guests: %w", err)
	}

	for i := range guests {
		gc := models.NewGuestContext(&guests[i], event)
		if err := e.arm(ctx, flow, gc, &report); err != nil {
			e.log.Error().Err(err).
				Str("flow_id", flow.ID).
				Str("guest_id", guests[i].ID).
				Msg("Failed to schedule flow")
			report.Errors++
		}
	}

	e.log.Info().
		Str("flow_id", flow.ID).
		Str("trigger", string(flow.Trigger)).
		Stringer("report", report).
		Msg("Flow activated")
	return report, nil
}
