package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"wedding-automation/internal/models"
)

const flowColumns = "id, event_id, name, trigger_kind, action_kind, delay_hours, custom_message, status, created_at, updated_at"

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		f                  models.Flow
		delay              sql.NullInt64
		created, updatedAt int64
	)
	err := row.Scan(&f.ID, &f.EventID, &f.Name, &f.Trigger, &f.Action, &delay,
		&f.CustomMessage, &f.Status, &created, &updatedAt)
	if err != nil {
		return nil, err
	}
	if delay.Valid {
		h := int(delay.Int64)
		f.DelayHours = &h
	}
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updatedAt)
	return &f, nil
}

// CreateFlow stores a new flow. New flows start as DRAFT unless a status
// is given.
func (s *SQLite) CreateFlow(ctx context.Context, f *models.Flow) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FlowDraft
	}
	now := s.now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flows (`+flowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.EventID, f.Name, f.Trigger, f.Action, nullInt(f.DelayHours),
		f.CustomMessage, f.Status, millis(f.CreatedAt), millis(f.UpdatedAt))
	switch {
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrEventNotFound, f.EventID)
	case err != nil:
		return fmt.Errorf("create flow: %w", err)
	}
	return nil
}

// Flow returns the flow with the given id.
func (s *SQLite) Flow(ctx context.Context, id string) (*models.Flow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	return f, nil
}

// Flows lists an event's flows, oldest first. An empty eventID lists all.
func (s *SQLite) Flows(ctx context.Context, eventID string) ([]models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY created_at, id`
	return s.queryFlows(ctx, query, args...)
}

// ActiveFlows lists the event's ACTIVE flows whose trigger is one of
// kinds. No kinds means any trigger.
func (s *SQLite) ActiveFlows(ctx context.Context, eventID string, kinds ...models.TriggerKind) ([]models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE event_id = ? AND status = ?`
	args := []any{eventID, models.FlowActive}
	if len(kinds) > 0 {
		query += ` AND trigger_kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += ` ORDER BY created_at, id`
	return s.queryFlows(ctx, query, args...)
}

func (s *SQLite) queryFlows(ctx context.Context, query string, args ...any) ([]models.Flow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("list flows: %w", err)
		}
		flows = append(flows, *f)
	}
	return flows, rows.Err()
}

// UpdateFlow overwrites a flow's editable fields.
func (s *SQLite) UpdateFlow(ctx context.Context, f *models.Flow) error {
	f.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE flows
		SET name = ?, trigger_kind = ?, action_kind = ?, delay_hours = ?,
		    custom_message = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, f.Trigger, f.Action, nullInt(f.DelayHours), f.CustomMessage, f.Status,
		millis(f.UpdatedAt), f.ID)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	return requireRow(res, ErrFlowNotFound, f.ID)
}

// DeleteFlow removes a flow and, by cascade, its executions.
func (s *SQLite) DeleteFlow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	return requireRow(res, ErrFlowNotFound, id)
}
