package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-automation/internal/models"
)

// DeliveryLogger persists delivery attempts.
type DeliveryLogger interface {
	LogDelivery(ctx context.Context, entry *models.DeliveryLog) error
}

// ChannelConfig enables a channel and supplies its transport.
type ChannelConfig struct {
	Enabled   bool
	Transport Transport
}

// Config drives the executor.
type Config struct {
	Channels   map[Channel]ChannelConfig
	Templates  map[models.ActionKind]string
	DateLayout string
	TimeLayout string
}

// Executor performs actions. It never retries.
type Executor struct {
	cfg  Config
	logs DeliveryLogger
	log  zerolog.Logger
	now  func() time.Time
}

// NewExecutor creates an executor. Templates missing from cfg fall back to
// DefaultTemplates.
func NewExecutor(cfg Config, logs DeliveryLogger, logger zerolog.Logger) *Executor {
	templates := DefaultTemplates()
	for kind, tmpl := range cfg.Templates {
		templates[kind] = tmpl
	}
	cfg.Templates = templates
	if cfg.Channels == nil {
		cfg.Channels = map[Channel]ChannelConfig{}
	}

	return &Executor{
		cfg:  cfg,
		logs: logs,
		log:  logger.With().Str("component", "executor").Logger(),
		now:  time.Now,
	}
}

// Execute runs the action of the given kind for one guest.
func (e *Executor) Execute(ctx context.Context, kind models.ActionKind, ectx Context) Result {
	act, ok := Lookup(kind)
	if !ok {
		return Failure(CodeUnknownAction, "unknown action %q", kind)
	}

	tmpl, res := act.body(e.cfg.Templates, ectx)
	if res.Code != CodeNone {
		return res
	}
	if ectx.GuestPhone == "" {
		return Failure(CodeNoPhone, "guest %s has no phone number", ectx.GuestID)
	}

	channel := e.cfg.Channels[act.Channel()]
	if !channel.Enabled {
		return Failure(act.Channel().disabledCode(), "%s channel is disabled", act.Channel())
	}
	if channel.Transport == nil {
		return Failure(CodeNoCredentials, "%s channel has no transport configured", act.Channel())
	}

	msg := Message{
		Channel: act.Channel(),
		To:      ectx.GuestPhone,
		Body:    Render(tmpl, ectx, e.cfg.DateLayout, e.cfg.TimeLayout),
	}

	id, err := send(ctx, channel.Transport, msg)
	e.logDelivery(ctx, kind, ectx, msg, id, err)
	if err != nil {
		e.log.Warn().Err(err).
			Str("action", string(kind)).
			Str("guest_id", ectx.GuestID).
			Msg("Send failed")

		switch {
		case errors.Is(err, ErrNoCredentials):
			return Failure(CodeNoCredentials, "%v", err)
		case errors.Is(err, context.DeadlineExceeded):
			return Failure(CodeTimeout, "send timed out: %v", err)
		default:
			return Failure(CodeSendFailed, "%v", err)
		}
	}

	e.log.Info().
		Str("action", string(kind)).
		Str("guest_id", ectx.GuestID).
		Str("delivery_id", id).
		Msg("Message sent")

	return Result{
		Success:    true,
		Message:    fmt.Sprintf("sent %s to %s", kind, ectx.GuestName),
		DeliveryID: id,
	}
}

// send converts a transport panic into an error.
func send(ctx context.Context, t Transport, msg Message) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.Send(ctx, msg)
}

func (e *Executor) logDelivery(ctx context.Context, kind models.ActionKind, ectx Context, msg Message, id string, sendErr error) {
	if e.logs == nil {
		return
	}

	entry := &models.DeliveryLog{
		ID:          uuid.NewString(),
		ExecutionID: ectx.ExecutionID,
		GuestID:     ectx.GuestID,
		Channel:     string(msg.Channel),
		Action:      kind,
		Message:     msg.Body,
		Status:      models.DeliverySent,
		ProviderID:  id,
		CreatedAt:   e.now().UTC(),
	}
	if sendErr != nil {
		entry.Status = models.DeliveryFailed
		entry.Error = sendErr.Error()
	}

	// The log write uses its own context so a send timeout does not drop it.
	if err := e.logs.LogDelivery(context.WithoutCancel(ctx), entry); err != nil {
		e.log.Error().Err(err).Str("guest_id", ectx.GuestID).Msg("Failed to write delivery log")
	}
}
