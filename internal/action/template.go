package action

import (
	"strconv"
	"strings"

	"wedding-automation/internal/models"
)

const (
	DefaultDateLayout = "02.01.2006"
	DefaultTimeLayout = "15:04"
)

// DefaultTemplates are used for any templated action the configuration
// does not override.
func DefaultTemplates() map[models.ActionKind]string {
	return map[models.ActionKind]string{
		models.ActionWhatsAppInvitation: "🎉 *Wedding Invitation*\n\n" +
			"Dear {guestName},\n\n" +
			"You are cordially invited to {eventName}\n\n" +
			"📅 Date: {eventDate} at {eventTime}\n" +
			"📍 Location: {venue}, {address}\n\n" +
			"Reply with:\n✅ *YES* to accept\n❌ *NO* to decline\n\n" +
			"Or answer here: {rsvpLink}",
		models.ActionWhatsAppReminder: "Hi {guestName} 👋\n\n" +
			"We haven't heard back from you yet about {eventName} on {eventDate}.\n" +
			"Reply *YES* or *NO*, or answer here: {rsvpLink}",
		models.ActionWhatsAppConfirmation: "🎉 Wonderful, {guestName}! We're so excited to celebrate with you!\n\n" +
			"We've confirmed {guestCount} guest(s) for {eventName} on {eventDate} at {eventTime}.\n\n" +
			"See you there! 💕",
		models.ActionWhatsAppDeclineAck: "Thank you for letting us know, {guestName}. " +
			"We're sorry you won't be able to join us for {eventName}.\n\n" +
			"We'll miss you! 💕",
		models.ActionWhatsAppEventDay: "Good morning {guestName}! ☀️\n\n" +
			"Today is the day! {eventName} starts at {eventTime}.\n" +
			"📍 {venue}, {address}\n" +
			"🪑 Your table: {tableName}",
		models.ActionWhatsAppTableInfo: "Hi {guestName}, your table for {eventName} is {tableName}.",
		models.ActionWhatsAppThankYou: "Thank you for celebrating with us, {guestName}! 💕",
		models.ActionSMSReminder: "{guestName}, please RSVP for {eventName} ({eventDate}): {rsvpLink}",
	}
}

// Render substitutes the guest and event variables into tmpl. Unknown
// placeholders are left as they are.
func Render(tmpl string, ectx Context, dateLayout, timeLayout string) string {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	if timeLayout == "" {
		timeLayout = DefaultTimeLayout
	}

	var eventDate, eventTime string
	if !ectx.EventAt.IsZero() {
		eventDate = ectx.EventAt.Format(dateLayout)
		eventTime = ectx.EventAt.Format(timeLayout)
	}
	count := ectx.PartySize
	if count < 1 {
		count = 1
	}

	r := strings.NewReplacer(
		"{guestName}", ectx.GuestName,
		"{eventName}", ectx.EventName,
		"{eventDate}", eventDate,
		"{eventTime}", eventTime,
		"{venue}", ectx.Venue,
		"{address}", ectx.Location,
		"{tableName}", ectx.TableName,
		"{rsvpLink}", ectx.RSVPLink,
		"{guestCount}", strconv.Itoa(count),
	)
	return r.Replace(tmpl)
}
