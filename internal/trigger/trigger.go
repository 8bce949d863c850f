// Package trigger decides whether and when a flow fires for a guest.
//
// Every trigger kind is a concrete type behind the sealed Trigger
// interface. The functions here are pure: callers pass "now" explicitly.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"wedding-automation/internal/models"
)

// FiringTolerance is how long after its target instant a relative
// trigger may still fire. It must exceed the sweep interval.
const FiringTolerance = 30 * time.Minute

// ErrUnknownTrigger is returned for a kind with no implementation.
var ErrUnknownTrigger = errors.New("unknown trigger")

// Family groups triggers that share eligibility rules and timing.
type Family int

const (
	// FamilyEvent triggers fire synchronously on an RSVP change and are never polled.
	FamilyEvent Family = iota
	// FamilyNoResponse triggers fire when a notified guest stays silent.
	FamilyNoResponse
	// FamilyRelative triggers fire at an offset from the event start.
	FamilyRelative
	// FamilyWindow triggers fire inside a fixed clock-hour band.
	FamilyWindow
)

func (f Family) String() string {
	switch f {
	case FamilyEvent:
		return "event"
	case FamilyNoResponse:
		return "no-response"
	case FamilyRelative:
		return "relative"
	case FamilyWindow:
		return "window"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Decision is the outcome of evaluating a trigger for one guest.
type Decision struct {
	Fire   bool
	Reason string
	// ScheduledFor is set when the trigger will fire later.
	ScheduledFor *time.Time
}

// Anchors are the instants a scheduled time is computed from.
type Anchors struct {
	EventAt        time.Time
	LastNotifiedAt *time.Time
}

// Trigger is implemented only by the kinds in this package.
type Trigger interface {
	Kind() models.TriggerKind
	Family() Family
	// RequiresDelay reports whether the flow must supply delay hours.
	RequiresDelay() bool
	// Eligible checks the guest-state precondition, ignoring time.
	Eligible(gc models.GuestContext) (bool, string)
	// ScheduledTime returns the instant the trigger targets, or false when
	// an anchor is missing or the instant is already before now.
	ScheduledTime(a Anchors, delayHours *int, now time.Time) (time.Time, bool)
	Evaluate(gc models.GuestContext, delayHours *int, now time.Time) Decision

	sealed()
}

var registry = map[models.TriggerKind]Trigger{
	models.TriggerRSVPConfirmed:   rsvpTrigger{kind: models.TriggerRSVPConfirmed, status: models.RSVPAccepted},
	models.TriggerRSVPDeclined:    rsvpTrigger{kind: models.TriggerRSVPDeclined, status: models.RSVPDeclined},
	models.TriggerNoResponse:      noResponseTrigger{kind: models.TriggerNoResponse},
	models.TriggerNoResponse24h:   noResponseTrigger{kind: models.TriggerNoResponse24h, preset: 24},
	models.TriggerNoResponse48h:   noResponseTrigger{kind: models.TriggerNoResponse48h, preset: 48},
	models.TriggerBeforeEvent:     relativeTrigger{kind: models.TriggerBeforeEvent, sign: -1},
	models.TriggerDayBeforeEvent:  relativeTrigger{kind: models.TriggerDayBeforeEvent, sign: -1, preset: 24},
	models.TriggerWeekBeforeEvent: relativeTrigger{kind: models.TriggerWeekBeforeEvent, sign: -1, preset: 168},
	models.TriggerAfterEvent:      relativeTrigger{kind: models.TriggerAfterEvent, sign: 1},
	models.TriggerEventDayMorning: windowTrigger{kind: models.TriggerEventDayMorning, startHour: 9},
	models.TriggerDayAfterMorning: windowTrigger{kind: models.TriggerDayAfterMorning, dayOffset: 1, startHour: 11},
}

// Lookup resolves a persisted kind to its implementation.
func Lookup(kind models.TriggerKind) (Trigger, error) {
	t, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, kind)
	}
	return t, nil
}

// Evaluate decides whether kind fires now for the guest.
func Evaluate(kind models.TriggerKind, gc models.GuestContext, delayHours *int, now time.Time) (Decision, error) {
	t, err := Lookup(kind)
	if err != nil {
		return Decision{}, err
	}
	return t.Evaluate(gc, delayHours, now), nil
}

// ScheduledTime computes the absolute instant kind targets.
func ScheduledTime(kind models.TriggerKind, eventAt time.Time, lastNotifiedAt *time.Time, delayHours *int, now time.Time) (time.Time, bool, error) {
	t, err := Lookup(kind)
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := t.ScheduledTime(Anchors{EventAt: eventAt, LastNotifiedAt: lastNotifiedAt}, delayHours, now)
	return at, ok, nil
}

// KindsOf returns every declared kind belonging to family f.
func KindsOf(f Family) []models.TriggerKind {
	var kinds []models.TriggerKind
	for _, k := range models.TriggerKinds() {
		if t, ok := registry[k]; ok && t.Family() == f {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ForRSVP returns the event-based trigger an RSVP status resolves to.
func ForRSVP(status models.RSVPStatus) (models.TriggerKind, bool) {
	switch status {
	case models.RSVPAccepted:
		return models.TriggerRSVPConfirmed, true
	case models.RSVPDeclined:
		return models.TriggerRSVPDeclined, true
	}
	return "", false
}

func notEligible(why string) Decision {
	return Decision{Reason: "not eligible: " + why}
}

func scheduled(at time.Time, reason string) Decision {
	return Decision{Reason: reason, ScheduledFor: &at}
}

func hoursOf(preset int, delayHours *int) (int, bool) {
	if preset > 0 {
		return preset, true
	}
	if delayHours == nil {
		return 0, false
	}
	return *delayHours, true
}
