package automation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
)

func TestCreateFlowValidation(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		flow models.Flow
	}{
		{"missing name", models.Flow{Trigger: models.TriggerRSVPConfirmed, Action: models.ActionWhatsAppConfirmation}},
		{"unknown trigger", models.Flow{Name: "x", Trigger: "WHENEVER", Action: models.ActionWhatsAppConfirmation}},
		{"unknown action", models.Flow{Name: "x", Trigger: models.TriggerRSVPConfirmed, Action: "SEND_PIGEON"}},
		{"flexible trigger without delay", models.Flow{Name: "x", Trigger: models.TriggerNoResponse, Action: models.ActionWhatsAppReminder}},
		{"negative delay", models.Flow{Name: "x", Trigger: models.TriggerBeforeEvent, Action: models.ActionWhatsAppReminder, DelayHours: ptr(-1)}},
		{"custom action without message", models.Flow{Name: "x", Trigger: models.TriggerRSVPConfirmed, Action: models.ActionCustomWhatsApp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.flow
			f.EventID = h.event.ID
			err := h.ctl.CreateFlow(ctx, &f)
			assert.ErrorIs(t, err, ErrInvalidFlow)
		})
	}
}

func TestCreateFlowStartsAsDraft(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	f := models.Flow{
		EventID:       h.event.ID,
		Name:          "thanks",
		Trigger:       models.TriggerDayAfterMorning,
		Action:        models.ActionCustomWhatsApp,
		CustomMessage: "Thank you {guestName}!",
		Status:        models.FlowActive,
	}
	require.NoError(t, h.ctl.CreateFlow(ctx, &f))
	assert.NotEmpty(t, f.ID)

	stored, err := h.repo.Flow(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowDraft, stored.Status)
}

func TestCreateFlowUnknownEvent(t *testing.T) {
	h := newMemoryHarness(t)

	f := models.Flow{EventID: "missing", Name: "x", Trigger: models.TriggerRSVPConfirmed, Action: models.ActionWhatsAppConfirmation}
	err := h.ctl.CreateFlow(context.Background(), &f)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
}

func TestSetFlowStatusTransitions(t *testing.T) {
	tests := []struct {
		path    []models.FlowStatus
		wantErr bool
	}{
		{[]models.FlowStatus{models.FlowActive, models.FlowPaused, models.FlowActive}, false},
		{[]models.FlowStatus{models.FlowArchived}, false},
		{[]models.FlowStatus{models.FlowActive, models.FlowArchived}, false},
		{[]models.FlowStatus{models.FlowPaused}, true},
		{[]models.FlowStatus{models.FlowActive, models.FlowDraft}, true},
		{[]models.FlowStatus{models.FlowArchived, models.FlowActive}, true},
	}

	for _, tt := range tests {
		h := newMemoryHarness(t)
		ctx := context.Background()

		f := models.Flow{EventID: h.event.ID, Name: "confirm", Trigger: models.TriggerRSVPConfirmed, Action: models.ActionWhatsAppConfirmation}
		require.NoError(t, h.ctl.CreateFlow(ctx, &f))

		var err error
		for _, status := range tt.path {
			if _, err = h.ctl.SetFlowStatus(ctx, f.ID, status); err != nil {
				break
			}
		}
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidTransition, tt.path)
		} else {
			assert.NoError(t, err, tt.path)
		}
	}
}

func TestSetFlowStatusSameStatusIsNoop(t *testing.T) {
	h := newMemoryHarness(t)
	flow := h.activeFlow(t, models.Flow{Trigger: models.TriggerRSVPConfirmed, Action: models.ActionWhatsAppConfirmation})

	report, err := h.ctl.SetFlowStatus(context.Background(), flow.ID, models.FlowActive)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestUpdateArchivedFlowRejected(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()

	f := models.Flow{EventID: h.event.ID, Name: "confirm", Trigger: models.TriggerRSVPConfirmed, Action: models.ActionWhatsAppConfirmation}
	require.NoError(t, h.ctl.CreateFlow(ctx, &f))
	_, err := h.ctl.SetFlowStatus(ctx, f.ID, models.FlowArchived)
	require.NoError(t, err)

	f.Name = "renamed"
	assert.ErrorIs(t, h.ctl.UpdateFlow(ctx, &f), ErrInvalidTransition)
}
