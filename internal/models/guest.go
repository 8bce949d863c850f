package models

import "time"

// Guest represents a wedding guest
type Guest struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	PhoneNumber    string     `json:"phone_number"`
	Name           string     `json:"name"`
	RSVPStatus     RSVPStatus `json:"rsvp_status"`
	RSVPDate       *time.Time `json:"rsvp_date,omitempty"`
	PartySize      int        `json:"party_size"`
	TableName      string     `json:"table_name,omitempty"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	InvitedDate    *time.Time `json:"invited_date,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// RSVPStatus represents the attendance confirmation status
type RSVPStatus string

const (
	RSVPPending  RSVPStatus = "PENDING"
	RSVPAccepted RSVPStatus = "ACCEPTED"
	RSVPDeclined RSVPStatus = "DECLINED"
)

// Valid reports whether s is a known RSVP status.
func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPPending, RSVPAccepted, RSVPDeclined:
		return true
	}
	return false
}

// GuestFilter narrows guest listings. Zero fields match anything.
type GuestFilter struct {
	EventID string
	Status  RSVPStatus
}

// NotificationType tags why a guest was messaged. Any of them restarts
// the no-response clock.
type NotificationType string

const (
	NotificationInvitation NotificationType = "INVITATION"
	NotificationReminder   NotificationType = "REMINDER"
	NotificationAutomation NotificationType = "AUTOMATION"
	NotificationManual     NotificationType = "MANUAL"
)

// GuestContext is the read-only snapshot triggers are evaluated against.
// Build it fresh for every evaluation.
type GuestContext struct {
	GuestID        string
	EventID        string
	RSVPStatus     RSVPStatus
	LastNotifiedAt *time.Time
	HasTable       bool
	EventAt        time.Time
}

// NewGuestContext assembles a GuestContext from a guest and its event.
func NewGuestContext(g *Guest, e *Event) GuestContext {
	return GuestContext{
		GuestID:        g.ID,
		EventID:        g.EventID,
		RSVPStatus:     g.RSVPStatus,
		LastNotifiedAt: g.LastNotifiedAt,
		HasTable:       g.TableName != "",
		EventAt:        e.LocalStart(),
	}
}
