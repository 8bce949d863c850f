// Package action performs the side effect of a fired flow: compose a
// message for the guest, hand it to a transport, log the delivery.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-automation/internal/models"
)

// ErrNoCredentials is returned by a transport that is not logged in.
var ErrNoCredentials = errors.New("transport has no credentials")

// Code classifies a failed action.
type Code string

const (
	CodeNone             Code = ""
	CodeNoPhone          Code = "NO_PHONE"
	CodeNoMessage        Code = "NO_MESSAGE"
	CodeNoTemplate       Code = "NO_TEMPLATE"
	CodeNoCredentials    Code = "NO_CREDENTIALS"
	CodeWhatsAppDisabled Code = "WHATSAPP_DISABLED"
	CodeSMSDisabled      Code = "SMS_DISABLED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeSendFailed       Code = "SEND_FAILED"
	CodeUnknownAction    Code = "UNKNOWN_ACTION"
	CodeTimeout          Code = "TIMEOUT"
)

// Result is what an action reports back. Failures are values, never
// errors.
type Result struct {
	Success    bool
	Message    string
	Code       Code
	DeliveryID string
}

// Failure builds an unsuccessful result.
func Failure(code Code, format string, args ...any) Result {
	return Result{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Channel is an outbound messaging channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

func (c Channel) disabledCode() Code {
	if c == ChannelSMS {
		return CodeSMSDisabled
	}
	return CodeWhatsAppDisabled
}

// Message is a rendered outbound message.
type Message struct {
	Channel Channel
	To      string
	Body    string
}

// Transport delivers a message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Context carries everything an action needs about the guest and event.
type Context struct {
	ExecutionID   string
	FlowID        string
	GuestID       string
	GuestName     string
	GuestPhone    string
	RSVPStatus    models.RSVPStatus
	PartySize     int
	TableName     string
	EventName     string
	EventAt       time.Time
	Location      string
	Venue         string
	RSVPLink      string
	CustomMessage string
}

// Action is implemented only by the kinds in this package.
type Action interface {
	Kind() models.ActionKind
	Channel() Channel
	// body picks the message template for the action.
	body(templates map[models.ActionKind]string, ectx Context) (string, Result)

	sealed()
}

// templated sends the configured template for its kind, or the flow's
// custom message when one is set.
type templated struct {
	kind    models.ActionKind
	channel Channel
}

func (a templated) Kind() models.ActionKind { return a.kind }
func (a templated) Channel() Channel        { return a.channel }
func (templated) sealed()                   {}

func (a templated) body(templates map[models.ActionKind]string, ectx Context) (string, Result) {
	if ectx.CustomMessage != "" {
		return ectx.CustomMessage, Result{}
	}
	tmpl, ok := templates[a.kind]
	if !ok || tmpl == "" {
		return "", Failure(CodeNoTemplate, "no template configured for %s", a.kind)
	}
	return tmpl, Result{}
}

// custom sends the flow's own message and nothing else.
type custom struct {
	kind    models.ActionKind
	channel Channel
}

func (a custom) Kind() models.ActionKind { return a.kind }
func (a custom) Channel() Channel        { return a.channel }
func (custom) sealed()                   {}

func (a custom) body(_ map[models.ActionKind]string, ectx Context) (string, Result) {
	if ectx.CustomMessage == "" {
		return "", Failure(CodeNoMessage, "%s requires a custom message", a.kind)
	}
	return ectx.CustomMessage, Result{}
}

var registry = map[models.ActionKind]Action{
	models.ActionWhatsAppInvitation:   templated{models.ActionWhatsAppInvitation, ChannelWhatsApp},
	models.ActionWhatsAppReminder:     templated{models.ActionWhatsAppReminder, ChannelWhatsApp},
	models.ActionWhatsAppConfirmation: templated{models.ActionWhatsAppConfirmation, ChannelWhatsApp},
	models.ActionWhatsAppDeclineAck:   templated{models.ActionWhatsAppDeclineAck, ChannelWhatsApp},
	models.ActionWhatsAppEventDay:     templated{models.ActionWhatsAppEventDay, ChannelWhatsApp},
	models.ActionWhatsAppTableInfo:    templated{models.ActionWhatsAppTableInfo, ChannelWhatsApp},
	models.ActionWhatsAppThankYou:     templated{models.ActionWhatsAppThankYou, ChannelWhatsApp},
	models.ActionCustomWhatsApp:       custom{models.ActionCustomWhatsApp, ChannelWhatsApp},
	models.ActionSMSReminder:          templated{models.ActionSMSReminder, ChannelSMS},
	models.ActionCustomSMS:            custom{models.ActionCustomSMS, ChannelSMS},
}

// Lookup resolves a persisted action kind.
func Lookup(kind models.ActionKind) (Action, bool) {
	a, ok := registry[kind]
	return a, ok
}

// IsCustom reports whether kind sends only the flow's custom message.
func IsCustom(kind models.ActionKind) bool {
	_, ok := registry[kind].(custom)
	return ok
}
