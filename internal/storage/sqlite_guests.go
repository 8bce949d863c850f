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

const eventColumns = "id, name, starts_at, timezone, location, venue"

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e        models.Event
		startsAt int64
	)
	if err := row.Scan(&e.ID, &e.Name, &startsAt, &e.Timezone, &e.Location, &e.Venue); err != nil {
		return nil, err
	}
	e.StartsAt = fromMillis(startsAt).In(location(e.Timezone))
	return &e, nil
}

// CreateEvent stores a new event, assigning an id when empty.
func (s *SQLite) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timezone == "" {
		e.Timezone = e.StartsAt.Location().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Name, millis(e.StartsAt), e.Timezone, e.Location, e.Venue)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Event returns the event with the given id.
func (s *SQLite) Event(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Events returns all events, soonest first.
func (s *SQLite) Events(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

const guestColumns = "id, event_id, phone_number, name, rsvp_status, rsvp_at, party_size, table_name, last_notified_at, invited_at, notes"

func scanGuest(row scanner) (*models.Guest, error) {
	var (
		g                           models.Guest
		rsvpAt, notifiedAt, invited sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.EventID, &g.PhoneNumber, &g.Name, &g.RSVPStatus, &rsvpAt,
		&g.PartySize, &g.TableName, &notifiedAt, &invited, &g.Notes)
	if err != nil {
		return nil, err
	}
	g.RSVPDate = fromNullMillis(rsvpAt)
	g.LastNotifiedAt = fromNullMillis(notifiedAt)
	g.InvitedDate = fromNullMillis(invited)
	return &g, nil
}

// CreateGuest adds a guest to an event's list.
func (s *SQLite) CreateGuest(ctx context.Context, g *models.Guest) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.RSVPStatus == "" {
		g.RSVPStatus = models.RSVPPending
	}
	if g.PartySize < 1 {
		g.PartySize = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guests (`+guestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.EventID, g.PhoneNumber, g.Name, g.RSVPStatus, nullMillis(g.RSVPDate),
		g.PartySize, g.TableName, nullMillis(g.LastNotifiedAt), nullMillis(g.InvitedDate), g.Notes)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrGuestExists, g.PhoneNumber)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrEventNotFound, g.EventID)
	case err != nil:
		return fmt.Errorf("create guest: %w", err)
	}
	return nil
}

// Guest returns the guest with the given id.
func (s *SQLite) Guest(ctx context.Context, id string) (*models.Guest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get guest: %w", err)
	}
	return g, nil
}

// GuestByPhone returns the most recently invited guest with the phone
// number.
func (s *SQLite) GuestByPhone(ctx context.Context, phoneNumber string) (*models.Guest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+guestColumns+` FROM guests
		WHERE phone_number = ?
		ORDER BY COALESCE(invited_at, 0) DESC
		LIMIT 1
	`, phoneNumber)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGuestNotFound, phoneNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get guest by phone: %w", err)
	}
	return g, nil
}

// Guests lists guests matching the filter, ordered by name.
func (s *SQLite) Guests(ctx context.Context, f models.GuestFilter) ([]models.Guest, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.Status != "" {
		where = append(where, "rsvp_status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + guestColumns + ` FROM guests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("list guests: %w", err)
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

// UpdateRSVP sets a guest's RSVP status and returns the previous one. An
// unchanged status is left alone.
func (s *SQLite) UpdateRSVP(ctx context.Context, guestID string, status models.RSVPStatus, at time.Time) (models.RSVPStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("update rsvp: begin tx: %w", err)
	}
	defer tx.Rollback()

	var previous models.RSVPStatus
	err = tx.QueryRowContext(ctx, `SELECT rsvp_status FROM guests WHERE id = ?`, guestID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrGuestNotFound, guestID)
	}
	if err != nil {
		return "", fmt.Errorf("update rsvp: %w", err)
	}
	if previous == status {
		return previous, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE guests SET rsvp_status = ?, rsvp_at = ? WHERE id = ?`,
		status, millis(at), guestID)
	if err != nil {
		return "", fmt.Errorf("update rsvp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("update rsvp: commit: %w", err)
	}
	return previous, nil
}

// MarkNotified records that the guest was messaged at the given instant.
// The last-notified timestamp never moves backwards.
func (s *SQLite) MarkNotified(ctx context.Context, guestID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guests
		SET last_notified_at = MAX(COALESCE(last_notified_at, 0), ?),
		    invited_at = COALESCE(invited_at, ?)
		WHERE id = ?
	`, millis(at), millis(at), guestID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return requireRow(res, ErrGuestNotFound, guestID)
}

// SetTable assigns the guest to a table. An empty name clears it.
func (s *SQLite) SetTable(ctx context.Context, guestID, tableName string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE guests SET table_name = ? WHERE id = ?`, tableName, guestID)
	if err != nil {
		return fmt.Errorf("set table: %w", err)
	}
	return requireRow(res, ErrGuestNotFound, guestID)
}

func requireRow(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
