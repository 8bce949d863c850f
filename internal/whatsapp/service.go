package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-automation/internal/action"
)

// ErrNotOnWhatsApp is returned when the recipient has no WhatsApp account.
var ErrNotOnWhatsApp = errors.New("number is not registered on WhatsApp")

// MessageHandler is a callback function for handling messages
type MessageHandler func(*events.Message) error

type Config struct {
	DataDir string
	// QROut receives the pairing QR code. Defaults to stdout.
	QROut io.Writer
}

type Service struct {
	client         *whatsmeow.Client
	cfg            *Config
	log            zerolog.Logger
	messageHandler MessageHandler
}

// NewService creates a new WhatsApp service. The device session is kept in
// DataDir/whatsmeow.db.
func NewService(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if cfg.QROut == nil {
		cfg.QROut = os.Stdout
	}

	// Use nil logger - sqlstore will use a no-op logger by default
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	// Use nil logger - whatsmeow will use a no-op logger by default
	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client: client,
		cfg:    cfg,
		log:    logger.With().Str("component", "whatsapp").Logger(),
	}

	// Register event handlers
	client.AddEventHandler(func(evt interface{}) {
		service.eventHandler(evt)
	})

	return service, nil
}

// NormalizePhoneNumber normalizes phone numbers to international format
// Handles Israeli numbers that start with 0 by converting to +972 format
func NormalizePhoneNumber(phoneNumber string) string {
	phoneNumber = strings.Map(func(r rune) rune {
		switch r {
		case '+', ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, phoneNumber)

	// Israeli format: 05XXXXXXXX -> 9725XXXXXXXX
	if strings.HasPrefix(phoneNumber, "0") && len(phoneNumber) == 10 {
		phoneNumber = "972" + phoneNumber[1:]
	}

	// If it starts with 9720, remove the 0 after 972
	if strings.HasPrefix(phoneNumber, "9720") {
		phoneNumber = "972" + phoneNumber[4:]
	}

	return phoneNumber
}

// PhoneFromJID returns the normalized phone number of a user JID.
func PhoneFromJID(jid types.JID) string {
	return NormalizePhoneNumber(jid.User)
}

// Connect connects to WhatsApp, showing a pairing QR code when the device
// has not been linked yet.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		// Generate and display QR code in terminal
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(s.cfg.QROut, "QR Code: %s\n", evt.Code)
			fmt.Fprintln(s.cfg.QROut, "Please scan this QR code with WhatsApp to connect.")
			continue
		}
		fmt.Fprintln(s.cfg.QROut, "\n"+q.ToSmallString(false))
		fmt.Fprintln(s.cfg.QROut, "📱 Please scan the QR code above with WhatsApp:")
		fmt.Fprintln(s.cfg.QROut, "   1. Open WhatsApp on your phone")
		fmt.Fprintln(s.cfg.QROut, "   2. Go to Settings > Linked Devices")
		fmt.Fprintln(s.cfg.QROut, "   3. Tap 'Link a Device'")
		fmt.Fprintln(s.cfg.QROut, "   4. Scan the QR code shown above")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// Connected reports whether the client holds a live, logged-in session.
func (s *Service) Connected() bool {
	return s.client.Store.ID != nil && s.client.IsConnected() && s.client.IsLoggedIn()
}

// Send delivers a text message and returns the WhatsApp message id. It
// satisfies action.Transport.
func (s *Service) Send(ctx context.Context, msg action.Message) (string, error) {
	if s.client.Store.ID == nil || !s.client.IsLoggedIn() {
		return "", action.ErrNoCredentials
	}

	phoneNumber := NormalizePhoneNumber(msg.To)

	// Verify the number is on WhatsApp and use the JID it resolves to
	resp, err := s.client.IsOnWhatsApp(ctx, []string{phoneNumber})
	if err != nil {
		return "", fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", fmt.Errorf("%w: %s", ErrNotOnWhatsApp, phoneNumber)
	}
	jid := resp[0].JID

	s.log.Debug().Str("jid", jid.String()).Str("phone", phoneNumber).Msg("Attempting to send message")

	body := msg.Body
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &body,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unknown server") || strings.Contains(err.Error(), "can't send message") {
			return "", fmt.Errorf("failed to send message to %s (JID: %s): recipient must be in your contacts: %w", phoneNumber, jid, err)
		}
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	s.log.Debug().
		Str("message_id", sent.ID).
		Time("timestamp", sent.Timestamp).
		Msg("Message sent")
	return sent.ID, nil
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt interface{}) {
	if evt == nil {
		return
	}
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

// handleMessage processes incoming messages
func (s *Service) handleMessage(msg *events.Message) {
	// Skip messages from self
	if msg.Info.IsFromMe {
		return
	}

	if s.messageHandler != nil {
		if err := s.messageHandler(msg); err != nil {
			s.log.Error().Err(err).Str("sender", msg.Info.Sender.String()).Msg("Error handling message")
		}
		return
	}
	s.log.Info().
		Str("sender", msg.Info.Sender.String()).
		Str("message", msg.Message.GetConversation()).
		Msg("Received message")
}

// SetMessageHandler sets a custom handler for incoming messages
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}
