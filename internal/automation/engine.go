// Package automation runs flows: it turns domain events and the passage
// of time into execution records and drives each record through its
// state machine.
//
// The engine holds no locks. The store's one-record-per-(flow, guest)
// constraint and compare-and-swap transitions are the only serialization
// points, so every entry point is safe to call concurrently.
package automation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
)

var (
	// ErrInvalidTransition is returned when an operator command does not
	// apply to the record's or flow's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrFlowNotActive is returned when sending for a flow that is not ACTIVE.
	ErrFlowNotActive = errors.New("flow is not active")
)

const (
	DefaultSendTimeout = 60 * time.Second
	DefaultSweepBatch  = 200
)

// Config tunes the engine.
type Config struct {
	// RSVPBaseURL is joined with the guest id to form {rsvpLink}.
	RSVPBaseURL string
	// SendTimeout bounds a single action.
	SendTimeout time.Duration
	// StaleAfter is how long a record may sit in PROCESSING before the
	// sweep fails it. Defaults to twice SendTimeout.
	StaleAfter time.Duration
	// SweepBatch caps the due records handled per sweep.
	SweepBatch int
}

func (c Config) withDefaults() Config {
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * c.SendTimeout
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = DefaultSweepBatch
	}
	return c
}

// Engine evaluates flows and executes their actions.
type Engine struct {
	repo     Repository
	executor Executor
	cfg      Config
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records engine activity in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine.
func New(repo Repository, executor Executor, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		executor: executor,
		cfg:      cfg.withDefaults(),
		log:      logger.With().Str("component", "automation").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report counts what a handler, sweep or operator command did.
type Report struct {
	Created   int
	Refreshed int
	Unchanged int
	Skipped   int
	Completed int
	Failed    int
	Reaped    int
	Errors    int
}

func (r *Report) add(o Report) {
	r.Created += o.Created
	r.Refreshed += o.Refreshed
	r.Unchanged += o.Unchanged
	r.Skipped += o.Skipped
	r.Completed += o.Completed
	r.Failed += o.Failed
	r.Reaped += o.Reaped
	r.Errors += o.Errors
}

func (r *Report) upserted(o models.UpsertOutcome) {
	switch o {
	case models.UpsertCreated:
		r.Created++
	case models.UpsertRefreshed:
		r.Refreshed++
	default:
		r.Unchanged++
	}
}

func (r *Report) finished(x *models.Execution) {
	switch x.Status {
	case models.ExecutionCompleted:
		r.Completed++
	case models.ExecutionFailed:
		r.Failed++
	}
}

func (r Report) String() string {
	return fmt.Sprintf("created=%d refreshed=%d unchanged=%d skipped=%d completed=%d failed=%d reaped=%d errors=%d",
		r.Created, r.Refreshed, r.Unchanged, r.Skipped, r.Completed, r.Failed, r.Reaped, r.Errors)
}

// Outcome is the result of running one execution record.
type Outcome struct {
	Execution models.Execution
	Result    action.Result
}

// claim moves x from one of from to PROCESSING. It reports false when
// another caller got there first.
func (e *Engine) claim(ctx context.Context, x *models.Execution, from ...models.ExecutionStatus) (bool, error) {
	now := e.now().UTC()
	ok, err := e.repo.TransitionExecution(ctx, x.ID, from, models.ExecutionUpdate{
		To:        models.ExecutionProcessing,
		At:        now,
		StartedAt: &now,
	})
	if err != nil {
		return false, fmt.Errorf("claim execution %s: %w", x.ID, err)
	}
	if ok {
		x.Status = models.ExecutionProcessing
		x.StartedAt = &now
		e.metrics.transition(models.ExecutionProcessing)
	}
	return ok, nil
}

// run executes a claimed record and closes its state machine. Failures
// are recorded on the record; the returned error is reserved for store
// errors.
func (e *Engine) run(ctx context.Context, x *models.Execution, flow *models.Flow) (Outcome, error) {
	ectx, guest, err := e.resolve(ctx, x, flow)
	var res action.Result
	switch {
	case storage.IsNotFound(err):
		res = action.Failure(action.CodeNotFound, "%v", err)
	case err != nil:
		res = action.Failure(action.CodeSendFailed, "resolve context: %v", err)
	default:
		sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		started := time.Now()
		res = e.executor.Execute(sendCtx, flow.Action, ectx)
		cancel()
		e.metrics.action(flow.Action, res, time.Since(started))
	}

	logger := e.log.With().
		Str("execution_id", x.ID).
		Str("flow_id", flow.ID).
		Str("guest_id", x.GuestID).
		Str("action", string(flow.Action)).
		Logger()

	if res.Success {
		if err := e.complete(ctx, x); err != nil {
			return Outcome{Execution: *x, Result: res}, err
		}
		logger.Info().Msg("Execution completed")

		if _, err := e.OnNotificationSent(ctx, NotificationSent{
			GuestID: guest.ID,
			EventID: guest.EventID,
			Type:    models.NotificationAutomation,
			SentAt:  e.now(),
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to record notification")
		}
		return Outcome{Execution: *x, Result: res}, nil
	}

	if err := e.fail(ctx, x, res.Code, res.Message); err != nil {
		return Outcome{Execution: *x, Result: res}, err
	}
	logger.Warn().
		Str("code", string(res.Code)).
		Str("error", res.Message).
		Msg("Execution failed")
	return Outcome{Execution: *x, Result: res}, nil
}

func (e *Engine) complete(ctx context.Context, x *models.Execution) error {
	now := e.now().UTC()
	ok, err := e.repo.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionProcessing},
		models.ExecutionUpdate{To: models.ExecutionCompleted, At: now, ExecutedAt: &now})
	if err != nil {
		return fmt.Errorf("complete execution %s: %w", x.ID, err)
	}
	if !ok {
		// The reaper gave up on the record while the send was in flight.
		e.log.Warn().Str("execution_id", x.ID).Msg("Execution left PROCESSING before it completed")
		return e.reload(ctx, x)
	}
	x.Status = models.ExecutionCompleted
	x.ExecutedAt = &now
	e.metrics.transition(models.ExecutionCompleted)
	return nil
}

func (e *Engine) fail(ctx context.Context, x *models.Execution, code action.Code, msg string) error {
	now := e.now().UTC()
	codeStr := string(code)
	ok, err := e.repo.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionProcessing},
		models.ExecutionUpdate{
			To:             models.ExecutionFailed,
			At:             now,
			ExecutedAt:     &now,
			ErrorCode:      &codeStr,
			ErrorMessage:   &msg,
			IncrementRetry: true,
		})
	if err != nil {
		return fmt.Errorf("fail execution %s: %w", x.ID, err)
	}
	if !ok {
		return e.reload(ctx, x)
	}
	x.Status = models.ExecutionFailed
	x.ExecutedAt = &now
	x.ErrorCode = codeStr
	x.ErrorMessage = msg
	x.RetryCount++
	e.metrics.transition(models.ExecutionFailed)
	return nil
}

func (e *Engine) reload(ctx context.Context, x *models.Execution) error {
	fresh, err := e.repo.Execution(ctx, x.ID)
	if err != nil {
		return fmt.Errorf("reload execution %s: %w", x.ID, err)
	}
	*x = *fresh
	return nil
}

// resolve assembles the action context from fresh guest and event rows.
func (e *Engine) resolve(ctx context.Context, x *models.Execution, flow *models.Flow) (action.Context, *models.Guest, error) {
	guest, err := e.repo.Guest(ctx, x.GuestID)
	if err != nil {
		return action.Context{}, nil, err
	}
	event, err := e.repo.Event(ctx, guest.EventID)
	if err != nil {
		return action.Context{}, guest, err
	}

	ectx := e.actionContext(guest, event)
	ectx.ExecutionID = x.ID
	ectx.FlowID = flow.ID
	ectx.CustomMessage = flow.CustomMessage
	return ectx, guest, nil
}

func (e *Engine) actionContext(g *models.Guest, ev *models.Event) action.Context {
	return action.Context{
		GuestID:    g.ID,
		GuestName:  g.Name,
		GuestPhone: g.PhoneNumber,
		RSVPStatus: g.RSVPStatus,
		PartySize:  g.PartySize,
		TableName:  g.TableName,
		EventName:  ev.Name,
		EventAt:    ev.LocalStart(),
		Location:   ev.Location,
		Venue:      ev.Venue,
		RSVPLink:   e.rsvpLink(g.ID),
	}
}

func (e *Engine) rsvpLink(guestID string) string {
	if e.cfg.RSVPBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(e.cfg.RSVPBaseURL, "/") + "/" + url.PathEscape(guestID)
}

// guestContext loads the snapshot triggers evaluate. It is never cached.
func (e *Engine) guestContext(ctx context.Context, guestID string) (models.GuestContext, error) {
	guest, err := e.repo.Guest(ctx, guestID)
	if err != nil {
		return models.GuestContext{}, err
	}
	event, err := e.repo.Event(ctx, guest.EventID)
	if err != nil {
		return models.GuestContext{}, err
	}
	return models.NewGuestContext(guest, event), nil
}

// Notify sends a one-off message outside any flow, for example the
// initial invitation, and records it as a notification so no-response
// flows start counting.
func (e *Engine) Notify(ctx context.Context, guestID string, kind models.ActionKind, typ models.NotificationType) (action.Result, error) {
	guest, err := e.repo.Guest(ctx, guestID)
	if err != nil {
		return action.Result{}, err
	}
	event, err := e.repo.Event(ctx, guest.EventID)
	if err != nil {
		return action.Result{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	started := time.Now()
	res := e.executor.Execute(sendCtx, kind, e.actionContext(guest, event))
	cancel()
	e.metrics.action(kind, res, time.Since(started))

	if !res.Success {
		return res, nil
	}
	if _, err := e.OnNotificationSent(ctx, NotificationSent{
		GuestID: guest.ID,
		EventID: guest.EventID,
		Type:    typ,
		SentAt:  e.now(),
	}); err != nil {
		return res, err
	}
	return res, nil
}
