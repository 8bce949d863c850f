package models

import "time"

// Execution is the state of one flow for one guest. There is at most one
// per (FlowID, GuestID).
type Execution struct {
	ID           string          `json:"id"`
	FlowID       string          `json:"flow_id"`
	GuestID      string          `json:"guest_id"`
	Status       ExecutionStatus `json:"status"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExecutionStatus is a state of the execution state machine.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "PENDING"
	ExecutionProcessing ExecutionStatus = "PROCESSING"
	ExecutionCompleted  ExecutionStatus = "COMPLETED"
	ExecutionFailed     ExecutionStatus = "FAILED"
	ExecutionSkipped    ExecutionStatus = "SKIPPED"
)

// Terminal reports whether no further transition may leave s.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionSkipped
}

// ExecutionUpdate describes a compare-and-swap transition. Only the
// non-nil fields are written.
type ExecutionUpdate struct {
	To             ExecutionStatus
	At             time.Time
	StartedAt      *time.Time
	ExecutedAt     *time.Time
	ErrorCode      *string
	ErrorMessage   *string
	IncrementRetry bool
}

// ExecutionFilter narrows execution listings. Zero fields match anything.
type ExecutionFilter struct {
	FlowID   string
	GuestID  string
	Statuses []ExecutionStatus
	// DueBy selects records whose ScheduledFor is at or before the instant.
	DueBy *time.Time
	// StartedBefore selects records whose StartedAt is before the instant.
	StartedBefore *time.Time
	// ActiveFlowsOnly restricts to executions of ACTIVE flows.
	ActiveFlowsOnly bool
	Limit           int
}

// SkipFilter selects PENDING executions to bulk-skip.
type SkipFilter struct {
	FlowID   string
	GuestID  string
	Triggers []TriggerKind
}

// UpsertOutcome reports what an idempotent pending upsert did.
type UpsertOutcome int

const (
	// UpsertUnchanged means a record exists in a non-PENDING state, or a
	// concurrent writer created it first.
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertRefreshed
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertRefreshed:
		return "refreshed"
	default:
		return "unchanged"
	}
}

// DeliveryLog records one outbound message attempt.
type DeliveryLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id,omitempty"`
	GuestID     string         `json:"guest_id"`
	Channel     string         `json:"channel"`
	Action      ActionKind     `json:"action"`
	Message     string         `json:"message"`
	Status      DeliveryStatus `json:"status"`
	ProviderID  string         `json:"provider_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DeliveryStatus is the outcome of a send attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)
