package automation

import (
	"context"
	"fmt"
	"time"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
	"wedding-automation/internal/trigger"
)

const timedOutMessage = "execution timed out"

// Sweep advances the store: it fails records stuck in PROCESSING, then
// re-evaluates every due PENDING record of an ACTIVE flow and fires,
// defers or skips it.
func (e *Engine) Sweep(ctx context.Context) (Report, error) {
	started := time.Now()
	var report Report

	reaped, err := e.reap(ctx)
	if err != nil {
		return report, err
	}
	report.Reaped = reaped

	now := e.now()
	due, err := e.repo.Executions(ctx, models.ExecutionFilter{
		Statuses:        []models.ExecutionStatus{models.ExecutionPending},
		DueBy:           &now,
		ActiveFlowsOnly: true,
		Limit:           e.cfg.SweepBatch,
	})
	if err != nil {
		return report, fmt.Errorf("list due executions: %w", err)
	}

	flows := make(map[string]*models.Flow)
	for i := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		x := &due[i]
		flow, ok := flows[x.FlowID]
		if !ok {
			flow, err = e.repo.Flow(ctx, x.FlowID)
			if err != nil {
				e.log.Error().Err(err).Str("execution_id", x.ID).Msg("Failed to load flow")
				report.Errors++
				continue
			}
			flows[x.FlowID] = flow
		}

		if err := e.advance(ctx, x, flow, &report); err != nil {
			e.log.Error().Err(err).
				Str("execution_id", x.ID).
				Str("flow_id", x.FlowID).
				Str("guest_id", x.GuestID).
				Msg("Failed to advance execution")
			report.Errors++
		}
	}

	e.metrics.sweep(len(due), time.Since(started))
	if len(due) > 0 || reaped > 0 {
		e.log.Info().Int("due", len(due)).Stringer("report", report).Msg("Sweep finished")
	}
	return report, nil
}

// advance decides what to do with one due PENDING record.
func (e *Engine) advance(ctx context.Context, x *models.Execution, flow *models.Flow, report *Report) error {
	now := e.now()

	gc, err := e.guestContext(ctx, x.GuestID)
	if storage.IsNotFound(err) {
		// Let the record fail visibly rather than vanish.
		return e.claimAndRun(ctx, x, flow, report)
	}
	if err != nil {
		return fmt.Errorf("load guest context: %w", err)
	}

	t, err := trigger.Lookup(flow.Trigger)
	if err != nil {
		return e.skip(ctx, x, err.Error(), report)
	}

	var d trigger.Decision
	if t.Family() == trigger.FamilyEvent {
		ok, why := t.Eligible(gc)
		d = trigger.Decision{Fire: ok, Reason: why}
	} else {
		d = t.Evaluate(gc, flow.DelayHours, now)
	}

	switch {
	case d.Fire:
		return e.claimAndRun(ctx, x, flow, report)
	case d.ScheduledFor != nil && d.ScheduledFor.After(now):
		outcome, err := e.repo.UpsertPendingExecution(ctx, x.FlowID, x.GuestID, *d.ScheduledFor)
		if err != nil {
			return err
		}
		report.upserted(outcome)
		return nil
	default:
		return e.skip(ctx, x, d.Reason, report)
	}
}

func (e *Engine) claimAndRun(ctx context.Context, x *models.Execution, flow *models.Flow, report *Report) error {
	ok, err := e.claim(ctx, x, models.ExecutionPending)
	if err != nil {
		return err
	}
	if !ok {
		report.Unchanged++
		return nil
	}
	out, err := e.run(ctx, x, flow)
	if err != nil {
		return err
	}
	report.finished(&out.Execution)
	return nil
}

func (e *Engine) skip(ctx context.Context, x *models.Execution, reason string, report *Report) error {
	ok, err := e.repo.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionPending},
		models.ExecutionUpdate{To: models.ExecutionSkipped, At: e.now().UTC(), ErrorMessage: &reason})
	if err != nil {
		return err
	}
	if !ok {
		report.Unchanged++
		return nil
	}
	report.Skipped++
	e.metrics.transition(models.ExecutionSkipped)
	e.log.Debug().
		Str("execution_id", x.ID).
		Str("reason", reason).
		Msg("Execution skipped")
	return nil
}

// reap fails PROCESSING records whose send has outlived StaleAfter.
func (e *Engine) reap(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.StaleAfter)
	stale, err := e.repo.Executions(ctx, models.ExecutionFilter{
		Statuses:      []models.ExecutionStatus{models.ExecutionProcessing},
		StartedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale executions: %w", err)
	}

	code := string(action.CodeTimeout)
	msg := timedOutMessage
	reaped := 0
	for _, x := range stale {
		ok, err := e.repo.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionProcessing},
			models.ExecutionUpdate{
				To:             models.ExecutionFailed,
				At:             e.now().UTC(),
				ErrorCode:      &code,
				ErrorMessage:   &msg,
				IncrementRetry: true,
			})
		if err != nil {
			return reaped, fmt.Errorf("reap execution %s: %w", x.ID, err)
		}
		if ok {
			reaped++
			e.metrics.transition(models.ExecutionFailed)
			e.log.Warn().
				Str("execution_id", x.ID).
				Time("started_at", *x.StartedAt).
				Msg("Execution timed out in PROCESSING")
		}
	}
	return reaped, nil
}
