package trigger

import (
	"fmt"
	"time"

	"wedding-automation/internal/models"
)

// rsvpTrigger fires the moment a guest's RSVP changes to status.
type rsvpTrigger struct {
	kind   models.TriggerKind
	status models.RSVPStatus
}

func (t rsvpTrigger) Kind() models.TriggerKind { return t.kind }
func (rsvpTrigger) Family() Family             { return FamilyEvent }
func (rsvpTrigger) RequiresDelay() bool        { return false }
func (rsvpTrigger) sealed()                    {}

func (t rsvpTrigger) Eligible(gc models.GuestContext) (bool, string) {
	if gc.RSVPStatus != t.status {
		return false, fmt.Sprintf("rsvp is %s, not %s", gc.RSVPStatus, t.status)
	}
	return true, ""
}

func (rsvpTrigger) ScheduledTime(Anchors, *int, time.Time) (time.Time, bool) {
	return time.Time{}, false
}

func (rsvpTrigger) Evaluate(models.GuestContext, *int, time.Time) Decision {
	return Decision{Reason: "event-based trigger, not time-based"}
}

// noResponseTrigger fires when a guest has not answered within the delay
// after their most recent notification.
type noResponseTrigger struct {
	kind   models.TriggerKind
	preset int
}

func (t noResponseTrigger) Kind() models.TriggerKind { return t.kind }
func (noResponseTrigger) Family() Family             { return FamilyNoResponse }
func (t noResponseTrigger) RequiresDelay() bool      { return t.preset == 0 }
func (noResponseTrigger) sealed()                    {}

func (noResponseTrigger) Eligible(gc models.GuestContext) (bool, string) {
	if gc.RSVPStatus != models.RSVPPending {
		return false, "guest already responded"
	}
	if gc.LastNotifiedAt == nil {
		return false, "guest was never notified"
	}
	return true, ""
}

func (t noResponseTrigger) ScheduledTime(a Anchors, delayHours *int, now time.Time) (time.Time, bool) {
	hours, ok := hoursOf(t.preset, delayHours)
	if !ok || a.LastNotifiedAt == nil {
		return time.Time{}, false
	}
	at := a.LastNotifiedAt.Add(time.Duration(hours) * time.Hour)
	if at.Before(now) {
		return time.Time{}, false
	}
	return at, true
}

func (t noResponseTrigger) Evaluate(gc models.GuestContext, delayHours *int, now time.Time) Decision {
	if ok, why := t.Eligible(gc); !ok {
		return notEligible(why)
	}
	hours, ok := hoursOf(t.preset, delayHours)
	if !ok {
		return notEligible("delay hours required")
	}
	if !now.Before(gc.EventAt) {
		return notEligible("event has already started")
	}
	at := gc.LastNotifiedAt.Add(time.Duration(hours) * time.Hour)
	if now.Before(at) {
		return scheduled(at, fmt.Sprintf("waiting %dh for a response", hours))
	}
	return Decision{Fire: true, Reason: fmt.Sprintf("no response within %dh", hours)}
}

// relativeTrigger fires at an offset before (sign -1) or after (sign 1)
// the event start, within FiringTolerance.
type relativeTrigger struct {
	kind   models.TriggerKind
	sign   int
	preset int
}

func (t relativeTrigger) Kind() models.TriggerKind { return t.kind }
func (relativeTrigger) Family() Family             { return FamilyRelative }
func (t relativeTrigger) RequiresDelay() bool      { return t.preset == 0 }
func (relativeTrigger) sealed()                    {}

func (relativeTrigger) Eligible(gc models.GuestContext) (bool, string) {
	if gc.RSVPStatus != models.RSVPAccepted {
		return false, "guest has not confirmed attendance"
	}
	return true, ""
}

func (t relativeTrigger) target(eventAt time.Time, hours int) time.Time {
	return eventAt.Add(time.Duration(t.sign*hours) * time.Hour)
}

func (t relativeTrigger) ScheduledTime(a Anchors, delayHours *int, now time.Time) (time.Time, bool) {
	hours, ok := hoursOf(t.preset, delayHours)
	if !ok || a.EventAt.IsZero() {
		return time.Time{}, false
	}
	at := t.target(a.EventAt, hours)
	if at.Before(now) {
		return time.Time{}, false
	}
	return at, true
}

func (t relativeTrigger) Evaluate(gc models.GuestContext, delayHours *int, now time.Time) Decision {
	if ok, why := t.Eligible(gc); !ok {
		return notEligible(why)
	}
	hours, ok := hoursOf(t.preset, delayHours)
	if !ok {
		return notEligible("delay hours required")
	}
	at := t.target(gc.EventAt, hours)
	switch {
	case now.Before(at):
		return scheduled(at, "before firing window")
	case now.Before(at.Add(FiringTolerance)):
		return Decision{Fire: true, Reason: "inside firing window"}
	default:
		return Decision{Reason: "firing window has passed"}
	}
}

// windowTrigger fires during a one-hour band in the event's local time,
// dayOffset days after the event date.
type windowTrigger struct {
	kind      models.TriggerKind
	dayOffset int
	startHour int
}

func (t windowTrigger) Kind() models.TriggerKind { return t.kind }
func (windowTrigger) Family() Family             { return FamilyWindow }
func (windowTrigger) RequiresDelay() bool        { return false }
func (windowTrigger) sealed()                    {}

func (windowTrigger) Eligible(gc models.GuestContext) (bool, string) {
	if gc.RSVPStatus != models.RSVPAccepted {
		return false, "guest has not confirmed attendance"
	}
	return true, ""
}

func (t windowTrigger) windowStart(eventAt time.Time) time.Time {
	y, m, d := eventAt.Date()
	return time.Date(y, m, d+t.dayOffset, t.startHour, 0, 0, 0, eventAt.Location())
}

func (t windowTrigger) ScheduledTime(a Anchors, _ *int, now time.Time) (time.Time, bool) {
	if a.EventAt.IsZero() {
		return time.Time{}, false
	}
	start := t.windowStart(a.EventAt)
	if start.Before(now) {
		return time.Time{}, false
	}
	return start, true
}

func (t windowTrigger) Evaluate(gc models.GuestContext, _ *int, now time.Time) Decision {
	if ok, why := t.Eligible(gc); !ok {
		return notEligible(why)
	}
	start := t.windowStart(gc.EventAt)
	end := start.Add(time.Hour)
	switch {
	case now.Before(start):
		return scheduled(start, "before firing window")
	case now.Before(end):
		return Decision{Fire: true, Reason: "inside firing window"}
	default:
		return scheduled(start, "firing window has passed")
	}
}
