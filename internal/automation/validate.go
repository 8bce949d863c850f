package automation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
	"wedding-automation/internal/trigger"
)

// ErrInvalidFlow wraps every flow validation failure.
var ErrInvalidFlow = errors.New("invalid flow")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("trigger_kind", func(fl validator.FieldLevel) bool {
		_, err := trigger.Lookup(models.TriggerKind(fl.Field().String()))
		return err == nil
	})
	_ = v.RegisterValidation("action_kind", func(fl validator.FieldLevel) bool {
		_, ok := action.Lookup(models.ActionKind(fl.Field().String()))
		return ok
	})
	return v
}

// ValidateFlow checks a flow's fields and the rules that tie its trigger
// and action together.
func (c *Controller) ValidateFlow(f *models.Flow) error {
	if err := c.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}

	t, _ := trigger.Lookup(f.Trigger)
	if t.RequiresDelay() && f.DelayHours == nil {
		return fmt.Errorf("%w: trigger %s requires delay hours", ErrInvalidFlow, f.Trigger)
	}
	if action.IsCustom(f.Action) && strings.TrimSpace(f.CustomMessage) == "" {
		return fmt.Errorf("%w: action %s requires a custom message", ErrInvalidFlow, f.Action)
	}
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFlow, f.Status)
	}
	return nil
}
