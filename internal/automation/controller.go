package automation

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
)

// Controller carries out operator commands: flow CRUD, status changes and
// the retry, cancel and run-now transitions.
type Controller struct {
	engine   *Engine
	repo     Repository
	validate *validator.Validate
	log      zerolog.Logger
}

// NewController creates a controller over the engine's repository.
func NewController(engine *Engine) *Controller {
	return &Controller{
		engine:   engine,
		repo:     engine.repo,
		validate: newValidator(),
		log:      engine.log.With().Str("component", "controller").Logger(),
	}
}

// Engine returns the engine the controller drives.
func (c *Controller) Engine() *Engine {
	return c.engine
}

var flowTransitions = map[models.FlowStatus][]models.FlowStatus{
	models.FlowDraft:    {models.FlowActive, models.FlowArchived},
	models.FlowActive:   {models.FlowPaused, models.FlowArchived},
	models.FlowPaused:   {models.FlowActive, models.FlowArchived},
	models.FlowArchived: nil,
}

// CreateFlow validates and stores a new DRAFT flow.
func (c *Controller) CreateFlow(ctx context.Context, f *models.Flow) error {
	f.Status = models.FlowDraft
	if err := c.ValidateFlow(f); err != nil {
		return err
	}
	if _, err := c.repo.Event(ctx, f.EventID); err != nil {
		return err
	}
	if err := c.repo.CreateFlow(ctx, f); err != nil {
		return err
	}

	c.log.Info().
		Str("flow_id", f.ID).
		Str("trigger", string(f.Trigger)).
		Str("action", string(f.Action)).
		Msg("Flow created")
	return nil
}

// UpdateFlow changes a flow's definition. Status changes go through
// SetFlowStatus; archived flows are read-only.
func (c *Controller) UpdateFlow(ctx context.Context, f *models.Flow) error {
	current, err := c.repo.Flow(ctx, f.ID)
	if err != nil {
		return err
	}
	if current.Status == models.FlowArchived {
		return fmt.Errorf("%w: flow %s is archived", ErrInvalidTransition, f.ID)
	}

	f.EventID = current.EventID
	f.Status = current.Status
	if err := c.ValidateFlow(f); err != nil {
		return err
	}
	return c.repo.UpdateFlow(ctx, f)
}

// SetFlowStatus moves a flow to status. Entering ACTIVE schedules the flow
// for the event's guests; the returned report describes that work.
func (c *Controller) SetFlowStatus(ctx context.Context, flowID string, status models.FlowStatus) (Report, error) {
	flow, err := c.repo.Flow(ctx, flowID)
	if err != nil {
		return Report{}, err
	}
	if flow.Status == status {
		return Report{}, nil
	}
	if !slices.Contains(flowTransitions[flow.Status], status) {
		return Report{}, fmt.Errorf("%w: flow %s from %s to %s", ErrInvalidTransition, flowID, flow.Status, status)
	}

	flow.Status = status
	if err := c.repo.UpdateFlow(ctx, flow); err != nil {
		return Report{}, err
	}
	c.log.Info().Str("flow_id", flowID).Str("status", string(status)).Msg("Flow status changed")

	if status != models.FlowActive {
		return Report{}, nil
	}
	return c.engine.OnFlowActivated(ctx, flowID)
}

// DeleteFlow removes a flow together with its execution records.
func (c *Controller) DeleteFlow(ctx context.Context, flowID string) error {
	if err := c.repo.DeleteFlow(ctx, flowID); err != nil {
		return err
	}
	c.log.Info().Str("flow_id", flowID).Msg("Flow deleted")
	return nil
}

// Flows lists an event's flows.
func (c *Controller) Flows(ctx context.Context, eventID string) ([]models.Flow, error) {
	return c.repo.Flows(ctx, eventID)
}

// Executions lists a flow's records, optionally restricted to statuses.
func (c *Controller) Executions(ctx context.Context, flowID string, statuses ...models.ExecutionStatus) ([]models.Execution, error) {
	return c.repo.Executions(ctx, models.ExecutionFilter{FlowID: flowID, Statuses: statuses})
}

// FlowStats counts a flow's records per status.
func (c *Controller) FlowStats(ctx context.Context, flowID string) (map[models.ExecutionStatus]int, error) {
	if _, err := c.repo.Flow(ctx, flowID); err != nil {
		return nil, err
	}
	return c.repo.CountExecutions(ctx, flowID)
}

// RetryFailed re-runs every FAILED record of an ACTIVE flow.
func (c *Controller) RetryFailed(ctx context.Context, flowID string) (Report, error) {
	var report Report

	flow, err := c.activeFlow(ctx, flowID)
	if err != nil {
		return report, err
	}
	failed, err := c.repo.Executions(ctx, models.ExecutionFilter{
		FlowID:   flowID,
		Statuses: []models.ExecutionStatus{models.ExecutionFailed},
	})
	if err != nil {
		return report, fmt.Errorf("list failed executions: %w", err)
	}

	for i := range failed {
		x := &failed[i]
		ok, err := c.engine.claim(ctx, x, models.ExecutionFailed)
		if err != nil {
			c.log.Error().Err(err).Str("execution_id", x.ID).Msg("Failed to claim execution for retry")
			report.Errors++
			continue
		}
		if !ok {
			report.Unchanged++
			continue
		}
		out, err := c.engine.run(ctx, x, flow)
		if err != nil {
			c.log.Error().Err(err).Str("execution_id", x.ID).Msg("Failed to record retry result")
			report.Errors++
			continue
		}
		report.finished(&out.Execution)
	}

	c.log.Info().Str("flow_id", flowID).Stringer("report", report).Msg("Retried failed executions")
	return report, nil
}

// CancelPending skips every PENDING record of a flow. In-flight records
// are not interrupted.
func (c *Controller) CancelPending(ctx context.Context, flowID string) (int, error) {
	if _, err := c.repo.Flow(ctx, flowID); err != nil {
		return 0, err
	}
	n, err := c.repo.SkipPendingExecutions(ctx, models.SkipFilter{FlowID: flowID}, "cancelled by operator", c.engine.now())
	if err != nil {
		return 0, fmt.Errorf("cancel pending executions: %w", err)
	}
	for i := 0; i < n; i++ {
		c.engine.metrics.transition(models.ExecutionSkipped)
	}
	c.log.Info().Str("flow_id", flowID).Int("cancelled", n).Msg("Cancelled pending executions")
	return n, nil
}

// RunNow executes a PENDING or FAILED record immediately, ignoring its
// schedule. It returns ErrInvalidTransition for any other status,
// including when a concurrent caller claimed the record first.
func (c *Controller) RunNow(ctx context.Context, executionID string) (Outcome, error) {
	x, err := c.repo.Execution(ctx, executionID)
	if err != nil {
		return Outcome{}, err
	}
	if x.Status != models.ExecutionPending && x.Status != models.ExecutionFailed {
		return Outcome{Execution: *x}, fmt.Errorf("%w: execution %s is %s", ErrInvalidTransition, x.ID, x.Status)
	}
	flow, err := c.activeFlow(ctx, x.FlowID)
	if err != nil {
		return Outcome{Execution: *x}, err
	}

	ok, err := c.engine.claim(ctx, x, models.ExecutionPending, models.ExecutionFailed)
	if err != nil {
		return Outcome{Execution: *x}, err
	}
	if !ok {
		return Outcome{Execution: *x}, fmt.Errorf("%w: execution %s was claimed concurrently", ErrInvalidTransition, x.ID)
	}
	return c.engine.run(ctx, x, flow)
}

// SendInvitation sends the invitation template to a guest and starts the
// guest's no-response clock.
func (c *Controller) SendInvitation(ctx context.Context, guestID string) (action.Result, error) {
	res, err := c.engine.Notify(ctx, guestID, models.ActionWhatsAppInvitation, models.NotificationInvitation)
	if err != nil {
		return res, err
	}
	if res.Success {
		c.log.Info().Str("guest_id", guestID).Msg("Invitation sent")
	}
	return res, nil
}

func (c *Controller) activeFlow(ctx context.Context, flowID string) (*models.Flow, error) {
	flow, err := c.repo.Flow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if flow.Status != models.FlowActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrFlowNotActive, flowID, flow.Status)
	}
	return flow, nil
}
