package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wedding-automation/internal/models"
)

type pairKey struct {
	flowID  string
	guestID string
}

// Memory keeps everything in process memory behind one lock. Each method
// is atomic, which gives it the same check-then-write guarantees as the
// SQLite store.
type Memory struct {
	mu         sync.RWMutex
	events     map[string]models.Event
	guests     map[string]models.Guest
	flows      map[string]models.Flow
	executions map[string]models.Execution
	byPair     map[pairKey]string
	deliveries []models.DeliveryLog
	now        func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:     make(map[string]models.Event),
		guests:     make(map[string]models.Guest),
		flows:      make(map[string]models.Flow),
		executions: make(map[string]models.Execution),
		byPair:     make(map[pairKey]string),
		now:        time.Now,
	}
}

// CreateEvent stores a new event.
func (m *Memory) CreateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timezone == "" {
		e.Timezone = e.StartsAt.Location().String()
	}
	m.events[e.ID] = *e
	return nil
}

// Event returns the event with the given id.
func (m *Memory) Event(_ context.Context, id string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return &e, nil
}

// Events returns all events, soonest first.
func (m *Memory) Events(_ context.Context) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

// CreateGuest adds a guest to an event's list.
func (m *Memory) CreateGuest(_ context.Context, g *models.Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[g.EventID]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, g.EventID)
	}
	for _, existing := range m.guests {
		if existing.EventID == g.EventID && existing.PhoneNumber == g.PhoneNumber {
			return fmt.Errorf("%w: %s", ErrGuestExists, g.PhoneNumber)
		}
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.RSVPStatus == "" {
		g.RSVPStatus = models.RSVPPending
	}
	if g.PartySize < 1 {
		g.PartySize = 1
	}
	m.guests[g.ID] = *g
	return nil
}

// Guest returns the guest with the given id.
func (m *Memory) Guest(_ context.Context, id string) (*models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.guests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, id)
	}
	return &g, nil
}

// GuestByPhone returns the most recently invited guest with the phone
// number.
func (m *Memory) GuestByPhone(_ context.Context, phoneNumber string) (*models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Guest
	for _, g := range m.guests {
		if g.PhoneNumber != phoneNumber {
			continue
		}
		if found == nil || invitedMillis(g) > invitedMillis(*found) {
			g := g
			found = &g
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, phoneNumber)
	}
	return found, nil
}

func invitedMillis(g models.Guest) int64 {
	if g.InvitedDate == nil {
		return 0
	}
	return g.InvitedDate.UnixMilli()
}

// Guests lists guests matching the filter, ordered by name.
func (m *Memory) Guests(_ context.Context, f models.GuestFilter) ([]models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Guest
	for _, g := range m.guests {
		if f.EventID != "" && g.EventID != f.EventID {
			continue
		}
		if f.Status != "" && g.RSVPStatus != f.Status {
			continue
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateRSVP sets a guest's RSVP status and returns the previous one.
func (m *Memory) UpdateRSVP(_ context.Context, guestID string, status models.RSVPStatus, at time.Time) (models.RSVPStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guests[guestID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
	}
	previous := g.RSVPStatus
	if previous == status {
		return previous, nil
	}
	g.RSVPStatus = status
	at = at.UTC()
	g.RSVPDate = &at
	m.guests[guestID] = g
	return previous, nil
}

// MarkNotified records that the guest was messaged at the given instant.
func (m *Memory) MarkNotified(_ context.Context, guestID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guests[guestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
	}
	at = at.UTC()
	if g.LastNotifiedAt == nil || at.After(*g.LastNotifiedAt) {
		g.LastNotifiedAt = &at
	}
	if g.InvitedDate == nil {
		g.InvitedDate = &at
	}
	m.guests[guestID] = g
	return nil
}

// SetTable assigns the guest to a table.
func (m *Memory) SetTable(_ context.Context, guestID, tableName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guests[guestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
	}
	g.TableName = tableName
	m.guests[guestID] = g
	return nil
}

// CreateFlow stores a new flow.
func (m *Memory) CreateFlow(_ context.Context, f *models.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[f.EventID]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, f.EventID)
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FlowDraft
	}
	now := m.now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	m.flows[f.ID] = *f
	return nil
}

// Flow returns the flow with the given id.
func (m *Memory) Flow(_ context.Context, id string) (*models.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}
	return &f, nil
}

// Flows lists an event's flows, oldest first.
func (m *Memory) Flows(_ context.Context, eventID string) ([]models.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterFlows(func(f models.Flow) bool {
		return eventID == "" || f.EventID == eventID
	}), nil
}

// ActiveFlows lists the event's ACTIVE flows whose trigger is one of kinds.
func (m *Memory) ActiveFlows(_ context.Context, eventID string, kinds ...models.TriggerKind) ([]models.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filterFlows(func(f models.Flow) bool {
		return f.EventID == eventID && f.Status == models.FlowActive &&
			(len(kinds) == 0 || slices.Contains(kinds, f.Trigger))
	}), nil
}

func (m *Memory) filterFlows(keep func(models.Flow) bool) []models.Flow {
	var flows []models.Flow
	for _, f := range m.flows {
		if keep(f) {
			flows = append(flows, f)
		}
	}
	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].CreatedAt.Equal(flows[j].CreatedAt) {
			return flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}
		return flows[i].ID < flows[j].ID
	})
	return flows
}

// UpdateFlow overwrites a flow's editable fields.
func (m *Memory) UpdateFlow(_ context.Context, f *models.Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.flows[f.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, f.ID)
	}
	f.EventID = existing.EventID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = m.now().UTC()
	m.flows[f.ID] = *f
	return nil
}

// DeleteFlow removes a flow and its executions.
func (m *Memory) DeleteFlow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.flows[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}
	delete(m.flows, id)
	for xid, x := range m.executions {
		if x.FlowID == id {
			delete(m.executions, xid)
			delete(m.byPair, pairKey{x.FlowID, x.GuestID})
		}
	}
	return nil
}

// CreateExecution inserts a new record or returns a *ConflictError.
func (m *Memory) CreateExecution(_ context.Context, x *models.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkPair(x.FlowID, x.GuestID); err != nil {
		return err
	}
	key := pairKey{x.FlowID, x.GuestID}
	if _, ok := m.byPair[key]; ok {
		return newConflict(x.FlowID, x.GuestID)
	}

	if x.ID == "" {
		x.ID = uuid.NewString()
	}
	if x.CreatedAt.IsZero() {
		x.CreatedAt = m.now().UTC()
	}
	x.UpdatedAt = x.CreatedAt
	m.executions[x.ID] = *x
	m.byPair[key] = x.ID
	return nil
}

func (m *Memory) checkPair(flowID, guestID string) error {
	if _, ok := m.flows[flowID]; !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	if _, ok := m.guests[guestID]; !ok {
		return fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
	}
	return nil
}

// UpsertPendingExecution creates a PENDING record for the pair or refreshes
// an existing PENDING one.
func (m *Memory) UpsertPendingExecution(_ context.Context, flowID, guestID string, scheduledFor time.Time) (models.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkPair(flowID, guestID); err != nil {
		return models.UpsertUnchanged, err
	}

	now := m.now().UTC()
	scheduledFor = scheduledFor.UTC()
	key := pairKey{flowID, guestID}

	id, ok := m.byPair[key]
	if !ok {
		x := models.Execution{
			ID:           uuid.NewString(),
			FlowID:       flowID,
			GuestID:      guestID,
			Status:       models.ExecutionPending,
			ScheduledFor: &scheduledFor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		m.executions[x.ID] = x
		m.byPair[key] = x.ID
		return models.UpsertCreated, nil
	}

	x := m.executions[id]
	if x.Status != models.ExecutionPending {
		return models.UpsertUnchanged, nil
	}
	x.ScheduledFor = &scheduledFor
	x.UpdatedAt = now
	m.executions[id] = x
	return models.UpsertRefreshed, nil
}

// Execution returns the record with the given id.
func (m *Memory) Execution(_ context.Context, id string) (*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	x, ok := m.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return &x, nil
}

// ExecutionFor returns the record of the (flow, guest) pair.
func (m *Memory) ExecutionFor(_ context.Context, flowID, guestID string) (*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPair[pairKey{flowID, guestID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrExecutionNotFound, flowID, guestID)
	}
	x := m.executions[id]
	return &x, nil
}

// Executions lists records matching the filter, earliest scheduled first.
func (m *Memory) Executions(_ context.Context, f models.ExecutionFilter) ([]models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Execution
	for _, x := range m.executions {
		if f.FlowID != "" && x.FlowID != f.FlowID {
			continue
		}
		if f.GuestID != "" && x.GuestID != f.GuestID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, x.Status) {
			continue
		}
		if f.DueBy != nil && (x.ScheduledFor == nil || x.ScheduledFor.After(*f.DueBy)) {
			continue
		}
		if f.StartedBefore != nil && (x.StartedAt == nil || !x.StartedAt.Before(*f.StartedBefore)) {
			continue
		}
		if f.ActiveFlowsOnly && m.flows[x.FlowID].Status != models.FlowActive {
			continue
		}
		out = append(out, x)
	}

	sortKey := func(x models.Execution) time.Time {
		if x.ScheduledFor != nil {
			return *x.ScheduledFor
		}
		return x.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := sortKey(out[i]), sortKey(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// TransitionExecution moves a record to u.To if its status is one of from.
func (m *Memory) TransitionExecution(_ context.Context, id string, from []models.ExecutionStatus, u models.ExecutionUpdate) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition execution: no source status")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	x, ok := m.executions[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if !slices.Contains(from, x.Status) {
		return false, nil
	}

	x.Status = u.To
	x.UpdatedAt = u.At.UTC()
	if u.StartedAt != nil {
		t := u.StartedAt.UTC()
		x.StartedAt = &t
	}
	if u.ExecutedAt != nil {
		t := u.ExecutedAt.UTC()
		x.ExecutedAt = &t
	}
	if u.ErrorCode != nil {
		x.ErrorCode = *u.ErrorCode
	}
	if u.ErrorMessage != nil {
		x.ErrorMessage = *u.ErrorMessage
	}
	if u.IncrementRetry {
		x.RetryCount++
	}
	m.executions[id] = x
	return true, nil
}

// SkipPendingExecutions moves every PENDING record matching f to SKIPPED.
func (m *Memory) SkipPendingExecutions(_ context.Context, f models.SkipFilter, reason string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, x := range m.executions {
		if x.Status != models.ExecutionPending {
			continue
		}
		if f.FlowID != "" && x.FlowID != f.FlowID {
			continue
		}
		if f.GuestID != "" && x.GuestID != f.GuestID {
			continue
		}
		if len(f.Triggers) > 0 && !slices.Contains(f.Triggers, m.flows[x.FlowID].Trigger) {
			continue
		}
		x.Status = models.ExecutionSkipped
		x.ErrorMessage = reason
		x.UpdatedAt = at.UTC()
		m.executions[id] = x
		n++
	}
	return n, nil
}

// CountExecutions returns the number of a flow's records per status.
func (m *Memory) CountExecutions(_ context.Context, flowID string) (map[models.ExecutionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[models.ExecutionStatus]int)
	for _, x := range m.executions {
		if x.FlowID == flowID {
			counts[x.Status]++
		}
	}
	return counts, nil
}

// LogDelivery appends a delivery log entry.
func (m *Memory) LogDelivery(_ context.Context, d *models.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now().UTC()
	}
	m.deliveries = append(m.deliveries, *d)
	return nil
}

// DeliveryLogs returns a guest's delivery history, oldest first.
func (m *Memory) DeliveryLogs(_ context.Context, guestID string) ([]models.DeliveryLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []models.DeliveryLog
	for _, d := range m.deliveries {
		if d.GuestID == guestID {
			logs = append(logs, d)
		}
	}
	return logs, nil
}
