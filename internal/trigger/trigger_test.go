package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-automation/internal/models"
)

var jerusalem = mustLoad("Asia/Jerusalem")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04", s, jerusalem)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func guest(status models.RSVPStatus, notified *time.Time) models.GuestContext {
	return models.GuestContext{
		GuestID:        "g1",
		EventID:        "e1",
		RSVPStatus:     status,
		LastNotifiedAt: notified,
		EventAt:        at("2025-06-10T18:00"),
	}
}

func TestEveryKindIsImplemented(t *testing.T) {
	for _, kind := range models.TriggerKinds() {
		tr, err := Lookup(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, kind, tr.Kind())
	}
	assert.Len(t, registry, len(models.TriggerKinds()))

	_, err := Lookup("SOMETIME")
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestKindsOf(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.TriggerKind{models.TriggerNoResponse, models.TriggerNoResponse24h, models.TriggerNoResponse48h},
		KindsOf(FamilyNoResponse))
	assert.ElementsMatch(t,
		[]models.TriggerKind{models.TriggerRSVPConfirmed, models.TriggerRSVPDeclined},
		KindsOf(FamilyEvent))
}

func TestForRSVP(t *testing.T) {
	kind, ok := ForRSVP(models.RSVPAccepted)
	assert.True(t, ok)
	assert.Equal(t, models.TriggerRSVPConfirmed, kind)

	kind, ok = ForRSVP(models.RSVPDeclined)
	assert.True(t, ok)
	assert.Equal(t, models.TriggerRSVPDeclined, kind)

	_, ok = ForRSVP(models.RSVPPending)
	assert.False(t, ok)
}

func TestEvaluate_EventBasedNeverFires(t *testing.T) {
	d, err := Evaluate(models.TriggerRSVPConfirmed, guest(models.RSVPAccepted, nil), nil, at("2025-06-09T10:00"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	assert.Nil(t, d.ScheduledFor)
	assert.Contains(t, d.Reason, "event-based")
}

func TestEvaluate_NoResponseScenario(t *testing.T) {
	notified := at("2025-06-08T10:00")
	delay := ptr(24)

	scheduledFor, ok, err := ScheduledTime(models.TriggerNoResponse, at("2025-06-10T18:00"), &notified, delay, at("2025-06-08T10:00"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, scheduledFor.Equal(at("2025-06-09T10:00")), scheduledFor)

	d, err := Evaluate(models.TriggerNoResponse, guest(models.RSVPPending, &notified), delay, at("2025-06-09T10:05"))
	require.NoError(t, err)
	assert.True(t, d.Fire)

	d, err = Evaluate(models.TriggerNoResponse, guest(models.RSVPPending, &notified), delay, at("2025-06-09T09:00"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	require.NotNil(t, d.ScheduledFor)
	assert.True(t, d.ScheduledFor.Equal(at("2025-06-09T10:00")))
}

func TestEvaluate_NoResponseEligibility(t *testing.T) {
	notified := at("2025-06-08T10:00")
	now := at("2025-06-09T12:00")

	tests := []struct {
		name   string
		ctx    models.GuestContext
		delay  *int
		reason string
	}{
		{"already accepted", guest(models.RSVPAccepted, &notified), ptr(24), "already responded"},
		{"already declined", guest(models.RSVPDeclined, &notified), ptr(24), "already responded"},
		{"never notified", guest(models.RSVPPending, nil), ptr(24), "never notified"},
		{"missing delay", guest(models.RSVPPending, &notified), nil, "delay hours required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(models.TriggerNoResponse, tt.ctx, tt.delay, now)
			require.NoError(t, err)
			assert.False(t, d.Fire)
			assert.Nil(t, d.ScheduledFor)
			assert.Contains(t, d.Reason, "not eligible")
			assert.Contains(t, d.Reason, tt.reason)
		})
	}
}

func TestEvaluate_NoResponseAfterEventStart(t *testing.T) {
	notified := at("2025-06-08T10:00")
	d, err := Evaluate(models.TriggerNoResponse24h, guest(models.RSVPPending, &notified), nil, at("2025-06-10T19:00"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	assert.Contains(t, d.Reason, "event has already started")
}

func TestEvaluate_PresetIgnoresDelay(t *testing.T) {
	notified := at("2025-06-08T10:00")
	d, err := Evaluate(models.TriggerNoResponse48h, guest(models.RSVPPending, &notified), ptr(1), at("2025-06-09T10:00"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	require.NotNil(t, d.ScheduledFor)
	assert.True(t, d.ScheduledFor.Equal(at("2025-06-10T10:00")))
}

func TestEvaluate_BeforeEventRequiresConfirmation(t *testing.T) {
	times := []time.Time{at("2025-06-01T00:00"), at("2025-06-09T18:00"), at("2025-06-09T18:10"), at("2025-06-11T00:00")}
	for _, status := range []models.RSVPStatus{models.RSVPPending, models.RSVPDeclined} {
		for _, now := range times {
			d, err := Evaluate(models.TriggerBeforeEvent, guest(status, nil), ptr(24), now)
			require.NoError(t, err)
			assert.False(t, d.Fire)
			assert.Nil(t, d.ScheduledFor)
			assert.Contains(t, d.Reason, "not confirmed")
		}
	}
}

func TestEvaluate_RelativeWindow(t *testing.T) {
	ctx := guest(models.RSVPAccepted, nil)

	tests := []struct {
		name      string
		kind      models.TriggerKind
		delay     *int
		now       time.Time
		fire      bool
		scheduled *time.Time
		reason    string
	}{
		{"before target", models.TriggerBeforeEvent, ptr(24), at("2025-06-09T12:00"), false, ptr(at("2025-06-09T18:00")), "before"},
		{"at target", models.TriggerBeforeEvent, ptr(24), at("2025-06-09T18:00"), true, nil, "inside"},
		{"inside tolerance", models.TriggerBeforeEvent, ptr(24), at("2025-06-09T18:29"), true, nil, "inside"},
		{"after tolerance", models.TriggerBeforeEvent, ptr(24), at("2025-06-09T18:30"), false, nil, "passed"},
		{"day before preset", models.TriggerDayBeforeEvent, nil, at("2025-06-09T18:15"), true, nil, "inside"},
		{"week before preset", models.TriggerWeekBeforeEvent, nil, at("2025-06-01T10:00"), false, ptr(at("2025-06-03T18:00")), "before"},
		{"after event", models.TriggerAfterEvent, ptr(2), at("2025-06-10T20:10"), true, nil, "inside"},
		{"after event missing delay", models.TriggerAfterEvent, nil, at("2025-06-10T20:10"), false, nil, "delay hours required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(tt.kind, ctx, tt.delay, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.fire, d.Fire)
			assert.Contains(t, d.Reason, tt.reason)
			if tt.scheduled == nil {
				assert.Nil(t, d.ScheduledFor)
			} else {
				require.NotNil(t, d.ScheduledFor)
				assert.True(t, tt.scheduled.Equal(*d.ScheduledFor), d.ScheduledFor)
			}
		})
	}
}

func TestEvaluate_EventDayMorningWindow(t *testing.T) {
	ctx := guest(models.RSVPAccepted, nil)
	nineAM := at("2025-06-10T09:00")

	tests := []struct {
		now  time.Time
		fire bool
	}{
		{at("2025-06-10T08:59"), false},
		{at("2025-06-10T09:00"), true},
		{at("2025-06-10T09:59"), true},
		{at("2025-06-10T10:00"), false},
		{at("2025-06-09T09:30"), false},
		{at("2025-06-11T09:30"), false},
	}

	for _, tt := range tests {
		t.Run(tt.now.Format(time.RFC3339), func(t *testing.T) {
			d, err := Evaluate(models.TriggerEventDayMorning, ctx, nil, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.fire, d.Fire)
			if !tt.fire {
				require.NotNil(t, d.ScheduledFor)
				assert.True(t, d.ScheduledFor.Equal(nineAM), d.ScheduledFor)
			}
		})
	}
}

func TestEvaluate_WindowUsesEventLocalTime(t *testing.T) {
	ctx := guest(models.RSVPAccepted, nil)
	// 09:30 Jerusalem time expressed in UTC.
	now := at("2025-06-10T09:30").UTC()
	d, err := Evaluate(models.TriggerEventDayMorning, ctx, nil, now)
	require.NoError(t, err)
	assert.True(t, d.Fire)
}

func TestEvaluate_DayAfterMorning(t *testing.T) {
	ctx := guest(models.RSVPAccepted, nil)

	d, err := Evaluate(models.TriggerDayAfterMorning, ctx, nil, at("2025-06-11T11:15"))
	require.NoError(t, err)
	assert.True(t, d.Fire)

	d, err = Evaluate(models.TriggerDayAfterMorning, ctx, nil, at("2025-06-10T23:00"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	require.NotNil(t, d.ScheduledFor)
	assert.True(t, d.ScheduledFor.Equal(at("2025-06-11T11:00")))

	d, err = Evaluate(models.TriggerDayAfterMorning, guest(models.RSVPDeclined, nil), nil, at("2025-06-11T11:15"))
	require.NoError(t, err)
	assert.False(t, d.Fire)
	assert.Nil(t, d.ScheduledFor)
}

func TestScheduledTime(t *testing.T) {
	eventAt := at("2025-06-10T18:00")
	notified := at("2025-06-08T10:00")
	now := at("2025-06-08T12:00")

	tests := []struct {
		name     string
		kind     models.TriggerKind
		notified *time.Time
		delay    *int
		now      time.Time
		want     *time.Time
	}{
		{"no response", models.TriggerNoResponse, &notified, ptr(24), now, ptr(at("2025-06-09T10:00"))},
		{"no response missing anchor", models.TriggerNoResponse, nil, ptr(24), now, nil},
		{"no response missing delay", models.TriggerNoResponse, &notified, nil, now, nil},
		{"no response in the past", models.TriggerNoResponse, &notified, ptr(1), now, nil},
		{"no response preset", models.TriggerNoResponse24h, &notified, nil, now, ptr(at("2025-06-09T10:00"))},
		{"before event", models.TriggerBeforeEvent, nil, ptr(3), now, ptr(at("2025-06-10T15:00"))},
		{"after event", models.TriggerAfterEvent, nil, ptr(12), now, ptr(at("2025-06-11T06:00"))},
		{"week before in the past", models.TriggerWeekBeforeEvent, nil, nil, now, nil},
		{"event day morning", models.TriggerEventDayMorning, nil, nil, now, ptr(at("2025-06-10T09:00"))},
		{"day after morning", models.TriggerDayAfterMorning, nil, nil, now, ptr(at("2025-06-11T11:00"))},
		{"event day morning passed", models.TriggerEventDayMorning, nil, nil, at("2025-06-10T09:01"), nil},
		{"event based", models.TriggerRSVPConfirmed, &notified, ptr(1), now, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ScheduledTime(tt.kind, eventAt, tt.notified, tt.delay, tt.now)
			require.NoError(t, err)
			if tt.want == nil {
				assert.False(t, ok)
				assert.True(t, got.IsZero())
				return
			}
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), got)
		})
	}

	_, _, err := ScheduledTime("NEVER", eventAt, nil, nil, now)
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestRequiresDelay(t *testing.T) {
	flexible := map[models.TriggerKind]bool{
		models.TriggerNoResponse:  true,
		models.TriggerBeforeEvent: true,
		models.TriggerAfterEvent:  true,
	}
	for _, kind := range models.TriggerKinds() {
		tr, err := Lookup(kind)
		require.NoError(t, err)
		assert.Equal(t, flexible[kind], tr.RequiresDelay(), kind)
	}
}
