package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wedding-automation/internal/models"
)

var executionFields = []string{
	"id", "flow_id", "guest_id", "status", "scheduled_for", "started_at", "executed_at",
	"error_code", "error_message", "retry_count", "created_at", "updated_at",
}

func executionColumns(prefix string) string {
	cols := make([]string, len(executionFields))
	for i, f := range executionFields {
		cols[i] = prefix + f
	}
	return strings.Join(cols, ", ")
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		x                            models.Execution
		scheduled, started, executed sql.NullInt64
		created, updatedAt           int64
	)
	err := row.Scan(&x.ID, &x.FlowID, &x.GuestID, &x.Status, &scheduled, &started, &executed,
		&x.ErrorCode, &x.ErrorMessage, &x.RetryCount, &created, &updatedAt)
	if err != nil {
		return nil, err
	}
	x.ScheduledFor = fromNullMillis(scheduled)
	x.StartedAt = fromNullMillis(started)
	x.ExecutedAt = fromNullMillis(executed)
	x.CreatedAt = fromMillis(created)
	x.UpdatedAt = fromMillis(updatedAt)
	return &x, nil
}

// CreateExecution inserts a new record. If the (flow, guest) pair already
// has one, it returns a *ConflictError wrapping ErrExecutionExists.
func (s *SQLite) CreateExecution(ctx context.Context, x *models.Execution) error {
	if x.ID == "" {
		x.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if x.CreatedAt.IsZero() {
		x.CreatedAt = now
	}
	x.UpdatedAt = x.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns("")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, x.ID, x.FlowID, x.GuestID, x.Status, nullMillis(x.ScheduledFor), nullMillis(x.StartedAt),
		nullMillis(x.ExecutedAt), x.ErrorCode, x.ErrorMessage, x.RetryCount,
		millis(x.CreatedAt), millis(x.UpdatedAt))
	switch {
	case isUniqueViolation(err):
		return newConflict(x.FlowID, x.GuestID)
	case isForeignKeyViolation(err):
		return fmt.Errorf("create execution: %w or %w", ErrFlowNotFound, ErrGuestNotFound)
	case err != nil:
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// UpsertPendingExecution creates a PENDING record for the pair, or
// refreshes scheduled_for on an existing PENDING one. Records in any other
// state are left untouched.
func (s *SQLite) UpsertPendingExecution(ctx context.Context, flowID, guestID string, scheduledFor time.Time) (models.UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.UpsertUnchanged, fmt.Errorf("upsert execution: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := millis(s.now())
	outcome := models.UpsertUnchanged

	var status models.ExecutionStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM executions WHERE flow_id = ? AND guest_id = ?`,
		flowID, guestID).Scan(&status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO executions (id, flow_id, guest_id, status, scheduled_for, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(flow_id, guest_id) DO NOTHING
		`, uuid.NewString(), flowID, guestID, models.ExecutionPending, millis(scheduledFor), now, now)
		if isForeignKeyViolation(err) {
			return models.UpsertUnchanged, fmt.Errorf("upsert execution: %w or %w", ErrFlowNotFound, ErrGuestNotFound)
		}
		if err != nil {
			return models.UpsertUnchanged, fmt.Errorf("upsert execution: insert: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			outcome = models.UpsertCreated
		}

	case err != nil:
		return models.UpsertUnchanged, fmt.Errorf("upsert execution: select: %w", err)

	case status == models.ExecutionPending:
		res, err := tx.ExecContext(ctx, `
			UPDATE executions SET scheduled_for = ?, updated_at = ?
			WHERE flow_id = ? AND guest_id = ? AND status = ?
		`, millis(scheduledFor), now, flowID, guestID, models.ExecutionPending)
		if err != nil {
			return models.UpsertUnchanged, fmt.Errorf("upsert execution: update: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			outcome = models.UpsertRefreshed
		}
	}

	if err := tx.Commit(); err != nil {
		return models.UpsertUnchanged, fmt.Errorf("upsert execution: commit: %w", err)
	}
	return outcome, nil
}

// Execution returns the record with the given id.
func (s *SQLite) Execution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns("")+` FROM executions WHERE id = ?`, id)
	return s.oneExecution(row, id)
}

// ExecutionFor returns the record of the (flow, guest) pair.
func (s *SQLite) ExecutionFor(ctx context.Context, flowID, guestID string) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns("")+` FROM executions WHERE flow_id = ? AND guest_id = ?`,
		flowID, guestID)
	return s.oneExecution(row, flowID+"/"+guestID)
}

func (s *SQLite) oneExecution(row *sql.Row, key string) (*models.Execution, error) {
	x, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return x, nil
}

// Executions lists records matching the filter, earliest scheduled first.
func (s *SQLite) Executions(ctx context.Context, f models.ExecutionFilter) ([]models.Execution, error) {
	var (
		where []string
		args  []any
	)

	query := `SELECT ` + executionColumns("e.") + ` FROM executions e`
	if f.ActiveFlowsOnly {
		query += ` JOIN flows fl ON fl.id = e.flow_id AND fl.status = ?`
		args = append(args, models.FlowActive)
	}
	if f.FlowID != "" {
		where = append(where, "e.flow_id = ?")
		args = append(args, f.FlowID)
	}
	if f.GuestID != "" {
		where = append(where, "e.guest_id = ?")
		args = append(args, f.GuestID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "e.status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.DueBy != nil {
		where = append(where, "e.scheduled_for IS NOT NULL AND e.scheduled_for <= ?")
		args = append(args, millis(*f.DueBy))
	}
	if f.StartedBefore != nil {
		where = append(where, "e.started_at IS NOT NULL AND e.started_at < ?")
		args = append(args, millis(*f.StartedBefore))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(e.scheduled_for, e.created_at), e.created_at, e.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []models.Execution
	for rows.Next() {
		x, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("list executions: %w", err)
		}
		out = append(out, *x)
	}
	return out, rows.Err()
}

// TransitionExecution moves a record to u.To if, and only if, its current
// status is one of from. It reports whether this call made the change.
func (s *SQLite) TransitionExecution(ctx context.Context, id string, from []models.ExecutionStatus, u models.ExecutionUpdate) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition execution: no source status")
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{u.To, millis(u.At)}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, millis(*u.StartedAt))
	}
	if u.ExecutedAt != nil {
		sets = append(sets, "executed_at = ?")
		args = append(args, millis(*u.ExecutedAt))
	}
	if u.ErrorCode != nil {
		sets = append(sets, "error_code = ?")
		args = append(args, *u.ErrorCode)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	if u.IncrementRetry {
		sets = append(sets, "retry_count = retry_count + 1")
	}

	query := `UPDATE executions SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args = append(args, id)
	for _, st := range from {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition execution: rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("transition execution: %w", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return false, nil
}

// SkipPendingExecutions moves every PENDING record matching f to SKIPPED
// and returns how many moved.
func (s *SQLite) SkipPendingExecutions(ctx context.Context, f models.SkipFilter, reason string, at time.Time) (int, error) {
	query := `UPDATE executions SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`
	args := []any{models.ExecutionSkipped, reason, millis(at), models.ExecutionPending}

	if f.FlowID != "" {
		query += ` AND flow_id = ?`
		args = append(args, f.FlowID)
	}
	if f.GuestID != "" {
		query += ` AND guest_id = ?`
		args = append(args, f.GuestID)
	}
	if len(f.Triggers) > 0 {
		query += ` AND flow_id IN (SELECT id FROM flows WHERE trigger_kind IN (` + placeholders(len(f.Triggers)) + `))`
		for _, k := range f.Triggers {
			args = append(args, k)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("skip pending executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("skip pending executions: rows affected: %w", err)
	}
	return int(n), nil
}

// CountExecutions returns the number of a flow's records per status.
func (s *SQLite) CountExecutions(ctx context.Context, flowID string) (map[models.ExecutionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM executions WHERE flow_id = ? GROUP BY status`, flowID)
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ExecutionStatus]int)
	for rows.Next() {
		var (
			status models.ExecutionStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count executions: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// LogDelivery appends a delivery log entry.
func (s *SQLite) LogDelivery(ctx context.Context, d *models.DeliveryLog) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_logs
		(id, execution_id, guest_id, channel, action_kind, message, status, provider_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ExecutionID, d.GuestID, d.Channel, d.Action, d.Message, d.Status,
		d.ProviderID, d.Error, millis(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("log delivery: %w", err)
	}
	return nil
}

// DeliveryLogs returns a guest's delivery history, oldest first.
func (s *SQLite) DeliveryLogs(ctx context.Context, guestID string) ([]models.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, guest_id, channel, action_kind, message, status, provider_id, error, created_at
		FROM delivery_logs WHERE guest_id = ? ORDER BY created_at, id
	`, guestID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []models.DeliveryLog
	for rows.Next() {
		var (
			d       models.DeliveryLog
			created int64
		)
		err := rows.Scan(&d.ID, &d.ExecutionID, &d.GuestID, &d.Channel, &d.Action, &d.Message,
			&d.Status, &d.ProviderID, &d.Error, &created)
		if err != nil {
			return nil, fmt.Errorf("list delivery logs: %w", err)
		}
		d.CreatedAt = fromMillis(created)
		logs = append(logs, d)
	}
	return logs, rows.Err()
}
