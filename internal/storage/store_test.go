package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-automation/internal/models"
)

// store is the method set both implementations share.
type store interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	Event(ctx context.Context, id string) (*models.Event, error)
	CreateGuest(ctx context.Context, g *models.Guest) error
	Guest(ctx context.Context, id string) (*models.Guest, error)
	GuestByPhone(ctx context.Context, phoneNumber string) (*models.Guest, error)
	Guests(ctx context.Context, f models.GuestFilter) ([]models.Guest, error)
	UpdateRSVP(ctx context.Context, guestID string, status models.RSVPStatus, at time.Time) (models.RSVPStatus, error)
	MarkNotified(ctx context.Context, guestID string, at time.Time) error
	SetTable(ctx context.Context, guestID, tableName string) error
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
	LogDelivery(ctx context.Context, d *models.DeliveryLog) error
	DeliveryLogs(ctx context.Context, guestID string) ([]models.DeliveryLog, error)
}

var (
	_ store = (*SQLite)(nil)
	_ store = (*Memory)(nil)
)

func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against a fresh instance of every implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) { fn(t, createTestSQLite(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

var eventStart = time.Date(2025, 6, 20, 17, 0, 0, 0, time.UTC)

type fixture struct {
	event *models.Event
	guest *models.Guest
	flow  *models.Flow
}

func seed(t *testing.T, s store, trigger models.TriggerKind) fixture {
	t.Helper()
	ctx := context.Background()

	e := &models.Event{Name: "Dana & Yoni", StartsAt: eventStart, Timezone: "UTC", Venue: "Hall"}
	require.NoError(t, s.CreateEvent(ctx, e))

	g := &models.Guest{EventID: e.ID, PhoneNumber: "972501234567", Name: "Avi"}
	require.NoError(t, s.CreateGuest(ctx, g))

	f := &models.Flow{EventID: e.ID, Name: "flow", Trigger: trigger,
		Action: models.ActionWhatsAppReminder, Status: models.FlowActive}
	require.NoError(t, s.CreateFlow(ctx, f))

	return fixture{event: e, guest: g, flow: f}
}

func TestEventRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		got, err := s.Event(ctx, fx.event.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dana & Yoni", got.Name)
		assert.True(t, got.StartsAt.Equal(eventStart))

		_, err = s.Event(ctx, "missing")
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.True(t, IsNotFound(err))
	})
}

func TestCreateGuest(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		assert.Equal(t, models.RSVPPending, fx.guest.RSVPStatus)
		assert.Equal(t, 1, fx.guest.PartySize)

		dup := &models.Guest{EventID: fx.event.ID, PhoneNumber: fx.guest.PhoneNumber, Name: "Twin"}
		assert.ErrorIs(t, s.CreateGuest(ctx, dup), ErrGuestExists)

		orphan := &models.Guest{EventID: "missing", PhoneNumber: "972500000000"}
		assert.ErrorIs(t, s.CreateGuest(ctx, orphan), ErrEventNotFound)
	})
}

func TestGuestsFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		second := &models.Guest{EventID: fx.event.ID, PhoneNumber: "972509999999", Name: "Bella",
			RSVPStatus: models.RSVPAccepted}
		require.NoError(t, s.CreateGuest(ctx, second))

		all, err := s.Guests(ctx, models.GuestFilter{EventID: fx.event.ID})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Avi", all[0].Name)
		assert.Equal(t, "Bella", all[1].Name)

		accepted, err := s.Guests(ctx, models.GuestFilter{EventID: fx.event.ID, Status: models.RSVPAccepted})
		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, second.ID, accepted[0].ID)
	})
}

func TestGuestByPhone(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		g, err := s.GuestByPhone(ctx, "972501234567")
		require.NoError(t, err)
		assert.Equal(t, fx.guest.ID, g.ID)

		_, err = s.GuestByPhone(ctx, "972500000000")
		assert.ErrorIs(t, err, ErrGuestNotFound)
	})
}

func TestUpdateRSVP(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		at := eventStart.Add(-72 * time.Hour)

		prev, err := s.UpdateRSVP(ctx, fx.guest.ID, models.RSVPAccepted, at)
		require.NoError(t, err)
		assert.Equal(t, models.RSVPPending, prev)

		g, err := s.Guest(ctx, fx.guest.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RSVPAccepted, g.RSVPStatus)
		require.NotNil(t, g.RSVPDate)
		assert.True(t, g.RSVPDate.Equal(at))

		prev, err = s.UpdateRSVP(ctx, fx.guest.ID, models.RSVPAccepted, at.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.RSVPAccepted, prev)

		g, err = s.Guest(ctx, fx.guest.ID)
		require.NoError(t, err)
		assert.True(t, g.RSVPDate.Equal(at), "unchanged status keeps the original date")

		_, err = s.UpdateRSVP(ctx, "missing", models.RSVPDeclined, at)
		assert.ErrorIs(t, err, ErrGuestNotFound)
	})
}

func TestMarkNotifiedNeverMovesBackwards(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		first := eventStart.Add(-96 * time.Hour)
		later := first.Add(24 * time.Hour)

		require.NoError(t, s.MarkNotified(ctx, fx.guest.ID, first))
		require.NoError(t, s.MarkNotified(ctx, fx.guest.ID, later))
		require.NoError(t, s.MarkNotified(ctx, fx.guest.ID, first))

		g, err := s.Guest(ctx, fx.guest.ID)
		require.NoError(t, err)
		require.NotNil(t, g.LastNotifiedAt)
		assert.True(t, g.LastNotifiedAt.Equal(later))
		require.NotNil(t, g.InvitedDate)
		assert.True(t, g.InvitedDate.Equal(first))

		assert.ErrorIs(t, s.MarkNotified(ctx, "missing", first), ErrGuestNotFound)
	})
}

func TestSetTable(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		require.NoError(t, s.SetTable(ctx, fx.guest.ID, "12"))
		g, err := s.Guest(ctx, fx.guest.ID)
		require.NoError(t, err)
		assert.Equal(t, "12", g.TableName)

		assert.ErrorIs(t, s.SetTable(ctx, "missing", "1"), ErrGuestNotFound)
	})
}

func TestActiveFlows(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		paused := &models.Flow{EventID: fx.event.ID, Name: "paused", Trigger: models.TriggerNoResponse,
			Action: models.ActionWhatsAppReminder, Status: models.FlowPaused}
		require.NoError(t, s.CreateFlow(ctx, paused))

		draft := &models.Flow{EventID: fx.event.ID, Name: "draft", Trigger: models.TriggerRSVPConfirmed,
			Action: models.ActionWhatsAppConfirmation}
		require.NoError(t, s.CreateFlow(ctx, draft))
		assert.Equal(t, models.FlowDraft, draft.Status)

		active, err := s.ActiveFlows(ctx, fx.event.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, fx.flow.ID, active[0].ID)

		active, err = s.ActiveFlows(ctx, fx.event.ID, models.TriggerRSVPConfirmed)
		require.NoError(t, err)
		assert.Empty(t, active)

		draft.Status = models.FlowActive
		require.NoError(t, s.UpdateFlow(ctx, draft))
		active, err = s.ActiveFlows(ctx, fx.event.ID, models.TriggerRSVPConfirmed)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, draft.ID, active[0].ID)

		all, err := s.Flows(ctx, fx.event.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestCreateExecutionConflict(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerRSVPConfirmed)

		first := &models.Execution{FlowID: fx.flow.ID, GuestID: fx.guest.ID, Status: models.ExecutionProcessing}
		require.NoError(t, s.CreateExecution(ctx, first))

		second := &models.Execution{FlowID: fx.flow.ID, GuestID: fx.guest.ID, Status: models.ExecutionProcessing}
		err := s.CreateExecution(ctx, second)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecutionExists)
		assert.True(t, IsConflict(err))

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, fx.flow.ID, conflict.FlowID)
		assert.Equal(t, fx.guest.ID, conflict.GuestID)
	})
}

func TestConcurrentCreateYieldsOneRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerRSVPConfirmed)

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				x := &models.Execution{FlowID: fx.flow.ID, GuestID: fx.guest.ID, Status: models.ExecutionProcessing}
				err := s.CreateExecution(ctx, x)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case IsConflict(err):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Equal(t, workers-1, conflicts)

		all, err := s.Executions(ctx, models.ExecutionFilter{FlowID: fx.flow.ID})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestConcurrentUpsertYieldsOneRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		when := eventStart.Add(-48 * time.Hour)

		const workers = 16
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, when)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if outcome == models.UpsertCreated {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		all, err := s.Executions(ctx, models.ExecutionFilter{FlowID: fx.flow.ID})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestUpsertRefreshesOnlyPending(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		first := eventStart.Add(-72 * time.Hour)
		second := eventStart.Add(-48 * time.Hour)

		outcome, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, first)
		require.NoError(t, err)
		assert.Equal(t, models.UpsertCreated, outcome)

		outcome, err = s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, second)
		require.NoError(t, err)
		assert.Equal(t, models.UpsertRefreshed, outcome)

		x, err := s.ExecutionFor(ctx, fx.flow.ID, fx.guest.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionPending, x.Status)
		require.NotNil(t, x.ScheduledFor)
		assert.True(t, x.ScheduledFor.Equal(second))

		for _, terminal := range []models.ExecutionStatus{models.ExecutionCompleted, models.ExecutionSkipped} {
			ok, err := s.TransitionExecution(ctx, x.ID,
				[]models.ExecutionStatus{models.ExecutionPending, models.ExecutionCompleted},
				models.ExecutionUpdate{To: terminal, At: second})
			require.NoError(t, err)
			require.True(t, ok)

			outcome, err = s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, eventStart)
			require.NoError(t, err)
			assert.Equal(t, models.UpsertUnchanged, outcome)

			got, err := s.Execution(ctx, x.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
			assert.True(t, got.ScheduledFor.Equal(second), "scheduled time is frozen once the record leaves PENDING")
		}
	})
}

func TestUpsertUnknownFlow(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		_, err := s.UpsertPendingExecution(ctx, "missing", fx.guest.ID, eventStart)
		assert.ErrorIs(t, err, ErrFlowNotFound)
	})
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		now := eventStart.Add(-24 * time.Hour)

		_, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, now)
		require.NoError(t, err)
		x, err := s.ExecutionFor(ctx, fx.flow.ID, fx.guest.ID)
		require.NoError(t, err)

		claim := models.ExecutionUpdate{To: models.ExecutionProcessing, At: now, StartedAt: &now}
		ok, err := s.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionPending}, claim)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionPending}, claim)
		require.NoError(t, err)
		assert.False(t, ok, "second claim loses")

		code, msg := "SEND_FAILED", "boom"
		ok, err = s.TransitionExecution(ctx, x.ID, []models.ExecutionStatus{models.ExecutionProcessing},
			models.ExecutionUpdate{To: models.ExecutionFailed, At: now, ExecutedAt: &now,
				ErrorCode: &code, ErrorMessage: &msg, IncrementRetry: true})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Execution(ctx, x.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionFailed, got.Status)
		assert.Equal(t, "SEND_FAILED", got.ErrorCode)
		assert.Equal(t, "boom", got.ErrorMessage)
		assert.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.StartedAt)
		assert.True(t, got.StartedAt.Equal(now))

		_, err = s.TransitionExecution(ctx, "missing", []models.ExecutionStatus{models.ExecutionPending}, claim)
		assert.ErrorIs(t, err, ErrExecutionNotFound)

		_, err = s.TransitionExecution(ctx, x.ID, nil, claim)
		assert.Error(t, err)
	})
}

func TestSkipPendingByTrigger(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		now := eventStart.Add(-24 * time.Hour)

		reminder := &models.Flow{EventID: fx.event.ID, Name: "week", Trigger: models.TriggerWeekBeforeEvent,
			Action: models.ActionWhatsAppReminder, Status: models.FlowActive}
		require.NoError(t, s.CreateFlow(ctx, reminder))

		_, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, now)
		require.NoError(t, err)
		_, err = s.UpsertPendingExecution(ctx, reminder.ID, fx.guest.ID, now)
		require.NoError(t, err)

		n, err := s.SkipPendingExecutions(ctx, models.SkipFilter{
			GuestID:  fx.guest.ID,
			Triggers: []models.TriggerKind{models.TriggerNoResponse, models.TriggerNoResponse24h},
		}, "guest responded", now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		x, err := s.ExecutionFor(ctx, fx.flow.ID, fx.guest.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionSkipped, x.Status)
		assert.Equal(t, "guest responded", x.ErrorMessage)

		x, err = s.ExecutionFor(ctx, reminder.ID, fx.guest.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionPending, x.Status)

		n, err = s.SkipPendingExecutions(ctx, models.SkipFilter{FlowID: reminder.ID}, "cancelled", now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		counts, err := s.CountExecutions(ctx, reminder.ID)
		require.NoError(t, err)
		assert.Equal(t, map[models.ExecutionStatus]int{models.ExecutionSkipped: 1}, counts)
	})
}

func TestDueExecutionsActiveFlowsOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)
		now := eventStart.Add(-24 * time.Hour)

		paused := &models.Flow{EventID: fx.event.ID, Name: "paused", Trigger: models.TriggerDayBeforeEvent,
			Action: models.ActionWhatsAppReminder, Status: models.FlowPaused}
		require.NoError(t, s.CreateFlow(ctx, paused))
		later := &models.Flow{EventID: fx.event.ID, Name: "later", Trigger: models.TriggerAfterEvent,
			Action: models.ActionWhatsAppThankYou, Status: models.FlowActive}
		require.NoError(t, s.CreateFlow(ctx, later))

		_, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, now.Add(-time.Minute))
		require.NoError(t, err)
		_, err = s.UpsertPendingExecution(ctx, paused.ID, fx.guest.ID, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = s.UpsertPendingExecution(ctx, later.ID, fx.guest.ID, now.Add(time.Hour))
		require.NoError(t, err)

		due, err := s.Executions(ctx, models.ExecutionFilter{
			Statuses:        []models.ExecutionStatus{models.ExecutionPending},
			DueBy:           &now,
			ActiveFlowsOnly: true,
		})
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, fx.flow.ID, due[0].FlowID)

		due, err = s.Executions(ctx, models.ExecutionFilter{
			Statuses: []models.ExecutionStatus{models.ExecutionPending},
			DueBy:    &now,
		})
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, paused.ID, due[0].FlowID, "earliest scheduled first")

		limited, err := s.Executions(ctx, models.ExecutionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestStaleProcessingFilter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerRSVPConfirmed)
		started := eventStart.Add(-48 * time.Hour)

		x := &models.Execution{FlowID: fx.flow.ID, GuestID: fx.guest.ID,
			Status: models.ExecutionProcessing, StartedAt: &started}
		require.NoError(t, s.CreateExecution(ctx, x))

		cutoff := started.Add(time.Minute)
		stale, err := s.Executions(ctx, models.ExecutionFilter{
			Statuses:      []models.ExecutionStatus{models.ExecutionProcessing},
			StartedBefore: &cutoff,
		})
		require.NoError(t, err)
		require.Len(t, stale, 1)

		stale, err = s.Executions(ctx, models.ExecutionFilter{
			Statuses:      []models.ExecutionStatus{models.ExecutionProcessing},
			StartedBefore: &started,
		})
		require.NoError(t, err)
		assert.Empty(t, stale)
	})
}

func TestDeleteFlowCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		_, err := s.UpsertPendingExecution(ctx, fx.flow.ID, fx.guest.ID, eventStart)
		require.NoError(t, err)

		require.NoError(t, s.DeleteFlow(ctx, fx.flow.ID))

		_, err = s.Flow(ctx, fx.flow.ID)
		assert.ErrorIs(t, err, ErrFlowNotFound)
		_, err = s.ExecutionFor(ctx, fx.flow.ID, fx.guest.ID)
		assert.ErrorIs(t, err, ErrExecutionNotFound)

		assert.ErrorIs(t, s.DeleteFlow(ctx, fx.flow.ID), ErrFlowNotFound)
	})
}

func TestDeliveryLogs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		fx := seed(t, s, models.TriggerNoResponse)

		entries := []*models.DeliveryLog{
			{GuestID: fx.guest.ID, Channel: "whatsapp", Action: models.ActionWhatsAppReminder,
				Message: "hi", Status: models.DeliverySent, ProviderID: "abc",
				CreatedAt: eventStart.Add(-2 * time.Hour)},
			{GuestID: fx.guest.ID, Channel: "whatsapp", Action: models.ActionWhatsAppReminder,
				Message: "hi again", Status: models.DeliveryFailed, Error: "offline",
				CreatedAt: eventStart.Add(-time.Hour)},
		}
		for _, d := range entries {
			require.NoError(t, s.LogDelivery(ctx, d))
			assert.NotEmpty(t, d.ID)
		}

		logs, err := s.DeliveryLogs(ctx, fx.guest.ID)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "abc", logs[0].ProviderID)
		assert.Equal(t, models.DeliveryFailed, logs[1].Status)
		assert.Equal(t, "offline", logs[1].Error)

		none, err := s.DeliveryLogs(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
