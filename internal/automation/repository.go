package automation

import (
	"context"
	"time"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
)

// Repository is the store the engine reads guests and flows from and
// keeps execution records in. storage.SQLite and storage.Memory both
// satisfy it.
type Repository interface {
	Event(ctx context.Context, id string) (*models.Event, error)
	Guest(ctx context.Context, id string) (*models.Guest, error)
	Guests(ctx context.Context, f models.GuestFilter) ([]models.Guest, error)
	MarkNotified(ctx context.Context, guestID string, at time.Time) error

	CreateFlow(ctx context.Context, f *models.Flow) error
	Flow(ctx context.Context, id string) (*models.Flow, error)
	Flows(ctx context.Context, eventID string) ([]models.Flow, error)
	ActiveFlows(ctx context.Context, eventID string, kinds ...models.TriggerKind) ([]models.Flow, error)
	UpdateFlow(ctx context.Context, f *models.Flow) error
	DeleteFlow(ctx context.Context, id string) error

	CreateExecution(ctx context.Context, x *models.Execution) error
	UpsertPendingExecution(ctx context.Context, flowID, guestID string, scheduledFor time.Time) (models.UpsertOutcome, error)
	Execution(ctx context.Context, id string) (*models.Execution, error)
	ExecutionFor(ctx context.Context, flowID, guestID string) (*models.Execution, error)
	Executions(ctx context.Context, f models.ExecutionFilter) ([]models.Execution, error)
	TransitionExecution(ctx context.Context, id string, from []models.ExecutionStatus, u models.ExecutionUpdate) (bool, error)
	SkipPendingExecutions(ctx context.Context, f models.SkipFilter, reason string, at time.Time) (int, error)
	CountExecutions(ctx context.Context, flowID string) (map[models.ExecutionStatus]int, error)
}

// Executor performs a flow's action. *action.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, kind models.ActionKind, ectx action.Context) action.Result
}
