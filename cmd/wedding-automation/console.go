package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"wedding-automation/internal/handler"
	"wedding-automation/internal/models"
	"wedding-automation/internal/whatsapp"
)

// console is the interactive menu shown by `run` on a terminal.
type console struct {
	app     *app
	rsvp    *handler.RSVPHandler
	eventID string
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// Run reads commands until the input ends or the operator exits.
func (c *console) Run(ctx context.Context) {
	c.scanner = bufio.NewScanner(c.in)

	for ctx.Err() == nil {
		fmt.Fprintln(c.out, "\nCommands:")
		fmt.Fprintln(c.out, "  1. Send invitation")
		fmt.Fprintln(c.out, "  2. View all guests")
		fmt.Fprintln(c.out, "  3. View guests by status")
		fmt.Fprintln(c.out, "  4. Record RSVP")
		fmt.Fprintln(c.out, "  5. View flows")
		fmt.Fprintln(c.out, "  6. View flow executions")
		fmt.Fprintln(c.out, "  7. Retry failed executions")
		fmt.Fprintln(c.out, "  8. Cancel pending executions")
		fmt.Fprintln(c.out, "  9. Run execution now")
		fmt.Fprintln(c.out, " 10. Sweep now")
		fmt.Fprintln(c.out, " 11. Exit")
		fmt.Fprint(c.out, "\nEnter command (1-11): ")

		if !c.scanner.Scan() {
			return
		}

		var err error
		switch strings.TrimSpace(c.scanner.Text()) {
		case "1":
			err = c.sendInvitation(ctx)
		case "2":
			err = c.viewGuests(ctx, "")
		case "3":
			err = c.viewGuestsByStatus(ctx)
		case "4":
			err = c.recordRSVP(ctx)
		case "5":
			err = printFlows(ctx, c.out, c.app.controller, c.eventID)
		case "6":
			err = c.viewExecutions(ctx)
		case "7":
			err = c.retryFailed(ctx)
		case "8":
			err = c.cancelPending(ctx)
		case "9":
			err = c.runNow(ctx)
		case "10":
			err = c.sweep(ctx)
		case "11":
			fmt.Fprintln(c.out, "Exiting...")
			return
		default:
			fmt.Fprintln(c.out, "Invalid command. Please try again.")
		}
		if err != nil {
			fmt.Fprintf(c.out, "❌ Error: %v\n", err)
		}
	}
}

func (c *console) prompt(label string) (string, bool) {
	fmt.Fprint(c.out, label)
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

func (c *console) sendInvitation(ctx context.Context) error {
	name, ok := c.prompt("Enter guest name: ")
	if !ok {
		return nil
	}
	phoneNumber, ok := c.prompt("Enter phone number (e.g., 0521234567 or +972521234567): ")
	if !ok {
		return nil
	}

	fmt.Fprintf(c.out, "\nSending invitation to %s (%s)...\n", name, phoneNumber)
	if _, err := c.rsvp.SendInvitation(ctx, phoneNumber, name); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "✅ Invitation sent successfully!")
	return nil
}

func (c *console) chooseRSVP(withPending bool) (models.RSVPStatus, bool) {
	fmt.Fprintln(c.out, "\nSelect status:")
	options := []models.RSVPStatus{models.RSVPAccepted, models.RSVPDeclined}
	if withPending {
		options = append([]models.RSVPStatus{models.RSVPPending}, options...)
	}
	for i, s := range options {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, s)
	}
	choice, ok := c.prompt(fmt.Sprintf("Enter choice (1-%d): ", len(options)))
	if !ok {
		return "", false
	}
	for i, s := range options {
		if choice == fmt.Sprint(i+1) {
			return s, true
		}
	}
	fmt.Fprintln(c.out, "Invalid choice.")
	return "", false
}

func (c *console) viewGuestsByStatus(ctx context.Context) error {
	status, ok := c.chooseRSVP(true)
	if !ok {
		return nil
	}
	return c.viewGuests(ctx, status)
}

func (c *console) viewGuests(ctx context.Context, status models.RSVPStatus) error {
	guests, err := c.app.store.Guests(ctx, models.GuestFilter{EventID: c.eventID, Status: status})
	if err != nil {
		return err
	}
	printGuests(c.out, guests)
	return nil
}

func (c *console) recordRSVP(ctx context.Context) error {
	phoneNumber, ok := c.prompt("Enter guest phone number: ")
	if !ok {
		return nil
	}
	status, ok := c.chooseRSVP(false)
	if !ok {
		return nil
	}
	if err := c.rsvp.RecordReply(ctx, whatsapp.NormalizePhoneNumber(phoneNumber), status); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✅ RSVP recorded as %s\n", status)
	return nil
}

func (c *console) viewExecutions(ctx context.Context) error {
	flowID, ok := c.prompt("Enter flow id: ")
	if !ok {
		return nil
	}
	executions, err := c.app.controller.Executions(ctx, flowID)
	if err != nil {
		return err
	}
	printExecutions(c.out, executions)
	return nil
}

func (c *console) retryFailed(ctx context.Context) error {
	flowID, ok := c.prompt("Enter flow id: ")
	if !ok {
		return nil
	}
	report, err := c.app.controller.RetryFailed(ctx, flowID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Retried: %s\n", report)
	return nil
}

func (c *console) cancelPending(ctx context.Context) error {
	flowID, ok := c.prompt("Enter flow id: ")
	if !ok {
		return nil
	}
	n, err := c.app.controller.CancelPending(ctx, flowID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Cancelled %d pending execution(s).\n", n)
	return nil
}

func (c *console) runNow(ctx context.Context) error {
	executionID, ok := c.prompt("Enter execution id: ")
	if !ok {
		return nil
	}
	out, err := c.app.controller.RunNow(ctx, executionID)
	if err != nil {
		return err
	}
	if out.Result.Success {
		fmt.Fprintf(c.out, "✅ %s\n", out.Result.Message)
		return nil
	}
	fmt.Fprintf(c.out, "❌ %s: %s\n", out.Result.Code, out.Result.Message)
	return nil
}

func (c *console) sweep(ctx context.Context) error {
	report, err := c.app.engine.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sweep: %s\n", report)
	return nil
}
