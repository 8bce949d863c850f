package models

import "time"

// Flow pairs a trigger with an action for one event.
type Flow struct {
	ID            string      `json:"id"`
	EventID       string      `json:"event_id" validate:"required"`
	Name          string      `json:"name" validate:"required,max=120"`
	Trigger       TriggerKind `json:"trigger" validate:"required,trigger_kind"`
	Action        ActionKind  `json:"action" validate:"required,action_kind"`
	DelayHours    *int        `json:"delay_hours,omitempty" validate:"omitempty,min=0,max=8760"`
	CustomMessage string      `json:"custom_message,omitempty" validate:"max=4096"`
	Status        FlowStatus  `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// FlowStatus is the operator-controlled lifecycle of a flow.
type FlowStatus string

const (
	FlowDraft    FlowStatus = "DRAFT"
	FlowActive   FlowStatus = "ACTIVE"
	FlowPaused   FlowStatus = "PAUSED"
	FlowArchived FlowStatus = "ARCHIVED"
)

// Valid reports whether s is a known flow status.
func (s FlowStatus) Valid() bool {
	switch s {
	case FlowDraft, FlowActive, FlowPaused, FlowArchived:
		return true
	}
	return false
}

// TriggerKind is the persisted name of a trigger. Behaviour lives in the
// trigger package.
type TriggerKind string

const (
	TriggerRSVPConfirmed   TriggerKind = "RSVP_CONFIRMED"
	TriggerRSVPDeclined    TriggerKind = "RSVP_DECLINED"
	TriggerNoResponse      TriggerKind = "NO_RESPONSE"
	TriggerNoResponse24h   TriggerKind = "NO_RESPONSE_24H"
	TriggerNoResponse48h   TriggerKind = "NO_RESPONSE_48H"
	TriggerBeforeEvent     TriggerKind = "BEFORE_EVENT"
	TriggerDayBeforeEvent  TriggerKind = "DAY_BEFORE_EVENT"
	TriggerWeekBeforeEvent TriggerKind = "WEEK_BEFORE_EVENT"
	TriggerAfterEvent      TriggerKind = "AFTER_EVENT"
	TriggerEventDayMorning TriggerKind = "EVENT_DAY_MORNING"
	TriggerDayAfterMorning TriggerKind = "DAY_AFTER_MORNING"
)

// TriggerKinds lists every declared trigger kind.
func TriggerKinds() []TriggerKind {
	return []TriggerKind{
		TriggerRSVPConfirmed,
		TriggerRSVPDeclined,
		TriggerNoResponse,
		TriggerNoResponse24h,
		TriggerNoResponse48h,
		TriggerBeforeEvent,
		TriggerDayBeforeEvent,
		TriggerWeekBeforeEvent,
		TriggerAfterEvent,
		TriggerEventDayMorning,
		TriggerDayAfterMorning,
	}
}

// ActionKind is the persisted name of an action. Behaviour lives in the
// action package.
type ActionKind string

const (
	ActionWhatsAppInvitation   ActionKind = "SEND_WHATSAPP_INVITATION"
	ActionWhatsAppReminder     ActionKind = "SEND_WHATSAPP_REMINDER"
	ActionWhatsAppConfirmation ActionKind = "SEND_WHATSAPP_CONFIRMATION"
	ActionWhatsAppDeclineAck   ActionKind = "SEND_WHATSAPP_DECLINE_ACK"
	ActionWhatsAppEventDay     ActionKind = "SEND_WHATSAPP_EVENT_DAY"
	ActionWhatsAppTableInfo    ActionKind = "SEND_WHATSAPP_TABLE_INFO"
	ActionWhatsAppThankYou     ActionKind = "SEND_WHATSAPP_THANK_YOU"
	ActionCustomWhatsApp       ActionKind = "SEND_CUSTOM_WHATSAPP"
	ActionSMSReminder          ActionKind = "SEND_SMS_REMINDER"
	ActionCustomSMS            ActionKind = "SEND_CUSTOM_SMS"
)

// ActionKinds lists every declared action kind.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionWhatsAppInvitation,
		ActionWhatsAppReminder,
		ActionWhatsAppConfirmation,
		ActionWhatsAppDeclineAck,
		ActionWhatsAppEventDay,
		ActionWhatsAppTableInfo,
		ActionWhatsAppThankYou,
		ActionCustomWhatsApp,
		ActionSMSReminder,
		ActionCustomSMS,
	}
}
