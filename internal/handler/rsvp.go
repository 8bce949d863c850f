package handler

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-automation/internal/automation"
	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
	"wedding-automation/internal/whatsapp"
)

// GuestStore is the part of the store the handler needs.
type GuestStore interface {
	CreateGuest(ctx context.Context, g *models.Guest) error
	GuestByPhone(ctx context.Context, phoneNumber string) (*models.Guest, error)
	UpdateRSVP(ctx context.Context, guestID string, status models.RSVPStatus, at time.Time) (models.RSVPStatus, error)
}

type RSVPHandler struct {
	guests     GuestStore
	engine     *automation.Engine
	controller *automation.Controller
	config     *Config
	log        zerolog.Logger
	now        func() time.Time
}

type Config struct {
	// EventID is the event new guests are added to.
	EventID string
	// Timeout bounds the handling of one inbound message.
	Timeout time.Duration
}

// NewRSVPHandler creates a new RSVP handler
func NewRSVPHandler(guests GuestStore, controller *automation.Controller, cfg *Config, logger zerolog.Logger) *RSVPHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &RSVPHandler{
		guests:     guests,
		engine:     controller.Engine(),
		controller: controller,
		config:     cfg,
		log:        logger.With().Str("component", "rsvp").Logger(),
		now:        time.Now,
	}
}

var (
	declinePhrases = []string{"not coming", "can't come", "cant come", "won't come", "wont come",
		"can't make it", "cannot make it", "not attending", "לא מגיע", "לא מגיעה", "לא מגיעים", "לא נגיע", "לא נוכל", "❌"}
	acceptPhrases = []string{"will come", "will be there", "count me in", "מגיע", "מגיעה", "מגיעים", "נגיע", "✅"}
	declineWords  = []string{"no", "nope", "decline", "declining", "declined", "לא"}
	acceptWords   = []string{"yes", "yep", "yeah", "accept", "accepting", "accepted", "attending", "coming", "כן"}
)

// ParseReply maps a guest's free-text reply to an RSVP status. Negative
// phrases win over the words they contain.
func ParseReply(text string) (models.RSVPStatus, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	switch {
	case containsAny(text, declinePhrases...):
		return models.RSVPDeclined, true
	case containsAny(text, acceptPhrases...):
		return models.RSVPAccepted, true
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	switch {
	case hasWord(words, declineWords...):
		return models.RSVPDeclined, true
	case hasWord(words, acceptWords...):
		return models.RSVPAccepted, true
	}
	return "", false
}

// HandleMessage processes incoming WhatsApp messages for RSVP responses
func (h *RSVPHandler) HandleMessage(msg *events.Message) error {
	if msg.Message == nil {
		return nil
	}

	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return nil
	}

	status, ok := ParseReply(text)
	if !ok {
		// Not a clear RSVP response, ignore
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	phoneNumber := whatsapp.PhoneFromJID(msg.Info.Sender)
	return h.RecordReply(ctx, phoneNumber, status)
}

// RecordReply stores a guest's answer and lets the automation engine react
// to it. Unknown numbers are ignored.
func (h *RSVPHandler) RecordReply(ctx context.Context, phoneNumber string, status models.RSVPStatus) error {
	// Only process RSVP if guest was previously invited
	guest, err := h.guests.GuestByPhone(ctx, phoneNumber)
	if storage.IsNotFound(err) {
		h.log.Debug().Str("phone", phoneNumber).Msg("Reply from unknown number")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up guest: %w", err)
	}

	previous, err := h.guests.UpdateRSVP(ctx, guest.ID, status, h.now())
	if err != nil {
		return fmt.Errorf("failed to update RSVP: %w", err)
	}
	if previous == status {
		return nil
	}

	h.log.Info().
		Str("guest_id", guest.ID).
		Str("previous", string(previous)).
		Str("rsvp", string(status)).
		Msg("RSVP updated")

	report, err := h.engine.OnRsvpStatusChanged(ctx, automation.RsvpChange{
		GuestID:  guest.ID,
		EventID:  guest.EventID,
		New:      status,
		Previous: previous,
	})
	if err != nil {
		return fmt.Errorf("failed to run RSVP flows: %w", err)
	}
	h.log.Debug().Str("guest_id", guest.ID).Stringer("report", report).Msg("RSVP flows handled")
	return nil
}

// SendInvitation adds the guest to the configured event when needed and
// sends the invitation.
func (h *RSVPHandler) SendInvitation(ctx context.Context, phoneNumber, name string) (*models.Guest, error) {
	// Normalize phone number before storing (so it matches WhatsApp format)
	normalizedNumber := whatsapp.NormalizePhoneNumber(phoneNumber)

	guest, err := h.guests.GuestByPhone(ctx, normalizedNumber)
	switch {
	case storage.IsNotFound(err) || (err == nil && guest.EventID != h.config.EventID):
		guest = &models.Guest{
			EventID:     h.config.EventID,
			PhoneNumber: normalizedNumber,
			Name:        name,
			RSVPStatus:  models.RSVPPending,
		}
		if err := h.guests.CreateGuest(ctx, guest); err != nil {
			return nil, fmt.Errorf("failed to add guest: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up guest: %w", err)
	}

	res, err := h.controller.SendInvitation(ctx, guest.ID)
	if err != nil {
		return guest, fmt.Errorf("failed to send invitation: %w", err)
	}
	if !res.Success {
		return guest, fmt.Errorf("failed to send invitation: %s (%s)", res.Message, res.Code)
	}
	return guest, nil
}

// containsAny checks if the text contains any of the given keywords
func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func hasWord(words []string, keywords ...string) bool {
	for _, w := range words {
		for _, k := range keywords {
			if w == k {
				return true
			}
		}
	}
	return false
}
