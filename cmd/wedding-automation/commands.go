package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"

	"wedding-automation/internal/automation"
	"wedding-automation/internal/config"
	"wedding-automation/internal/handler"
	"wedding-automation/internal/models"
	"wedding-automation/internal/whatsapp"
)

const listTimeLayout = "2006-01-02 15:04"

func eventCommand() *cli.Command {
	return &cli.Command{
		Name:  "event",
		Usage: "Manage events",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an event",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Event name", Required: true},
					&cli.StringFlag{Name: "date", Usage: "Start, as " + config.WeddingDateLayout, Required: true},
					&cli.StringFlag{Name: "timezone", Usage: "IANA timezone (defaults to the configured one)"},
					&cli.StringFlag{Name: "venue", Usage: "Venue name"},
					&cli.StringFlag{Name: "location", Usage: "Address"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					tz := a.cfg.Timezone
					if cmd.IsSet("timezone") {
						tz = cmd.String("timezone")
					}
					loc, err := time.LoadLocation(tz)
					if err != nil {
						return fmt.Errorf("invalid timezone %q: %w", tz, err)
					}
					startsAt, err := time.ParseInLocation(config.WeddingDateLayout, cmd.String("date"), loc)
					if err != nil {
						return fmt.Errorf("invalid date: %w", err)
					}

					event := &models.Event{
						Name:     cmd.String("name"),
						StartsAt: startsAt,
						Timezone: tz,
						Venue:    cmd.String("venue"),
						Location: cmd.String("location"),
					}
					if err := a.store.CreateEvent(ctx, event); err != nil {
						return err
					}
					fmt.Printf("✅ Event created: %s\n", event.ID)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List events",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					events, err := a.store.Events(ctx)
					if err != nil {
						return err
					}
					if len(events) == 0 {
						fmt.Println("No events found.")
						return nil
					}
					for _, e := range events {
						fmt.Printf("%s  %s  %s (%s)  %s\n", e.ID, e.Name,
							e.LocalStart().Format(listTimeLayout), e.Timezone, e.Venue)
					}
					return nil
				}),
			},
		},
	}
}

func guestCommand() *cli.Command {
	return &cli.Command{
		Name:  "guest",
		Usage: "Manage guests",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a guest without messaging them",
				Flags: []cli.Flag{
					eventFlag(),
					&cli.StringFlag{Name: "name", Usage: "Guest name", Required: true},
					&cli.StringFlag{Name: "phone", Usage: "Phone number, local or international", Required: true},
					&cli.IntFlag{Name: "party-size", Usage: "Number of people", Value: 1},
					&cli.StringFlag{Name: "table", Usage: "Table name"},
					&cli.StringFlag{Name: "notes", Usage: "Free-form notes"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					eventID, err := a.eventID(ctx, cmd)
					if err != nil {
						return err
					}
					guest := &models.Guest{
						EventID:     eventID,
						Name:        cmd.String("name"),
						PhoneNumber: whatsapp.NormalizePhoneNumber(cmd.String("phone")),
						PartySize:   int(cmd.Int("party-size")),
						TableName:   cmd.String("table"),
						Notes:       cmd.String("notes"),
					}
					if err := a.store.CreateGuest(ctx, guest); err != nil {
						return err
					}
					fmt.Printf("✅ Guest added: %s (%s)\n", guest.ID, guest.PhoneNumber)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List guests",
				Flags: []cli.Flag{
					eventFlag(),
					&cli.StringFlag{Name: "status", Usage: "Only guests with this RSVP status"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					eventID, err := a.eventID(ctx, cmd)
					if err != nil {
						return err
					}
					status := models.RSVPStatus(strings.ToUpper(cmd.String("status")))
					if status != "" && !status.Valid() {
						return fmt.Errorf("unknown RSVP status %q", cmd.String("status"))
					}
					guests, err := a.store.Guests(ctx, models.GuestFilter{EventID: eventID, Status: status})
					if err != nil {
						return err
					}
					printGuests(os.Stdout, guests)
					return nil
				}),
			},
			{
				Name:      "rsvp",
				Usage:     "Record a guest's answer and run the matching flows",
				ArgsUsage: "<phone> <accepted|declined>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					if cmd.Args().Len() != 2 {
						return errors.New("usage: guest rsvp <phone> <accepted|declined>")
					}
					status := models.RSVPStatus(strings.ToUpper(cmd.Args().Get(1)))
					if status != models.RSVPAccepted && status != models.RSVPDeclined {
						return fmt.Errorf("unknown answer %q", cmd.Args().Get(1))
					}
					h := handler.NewRSVPHandler(a.store, a.controller, &handler.Config{}, a.log)
					return h.RecordReply(ctx, whatsapp.NormalizePhoneNumber(cmd.Args().First()), status)
				}),
			},
		},
	}
}

func flowCommand() *cli.Command {
	return &cli.Command{
		Name:  "flow",
		Usage: "Manage automation flows",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a DRAFT flow",
				Flags: []cli.Flag{
					eventFlag(),
					&cli.StringFlag{Name: "name", Usage: "Flow name", Required: true},
					&cli.StringFlag{Name: "trigger", Usage: "Trigger kind, e.g. NO_RESPONSE_48H", Required: true},
					&cli.StringFlag{Name: "action", Usage: "Action kind, e.g. SEND_WHATSAPP_REMINDER", Required: true},
					&cli.IntFlag{Name: "delay-hours", Usage: "Delay for NO_RESPONSE, BEFORE_EVENT and AFTER_EVENT"},
					&cli.StringFlag{Name: "message", Usage: "Custom message; overrides the action's template"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					eventID, err := a.eventID(ctx, cmd)
					if err != nil {
						return err
					}
					flow := &models.Flow{
						EventID:       eventID,
						Name:          cmd.String("name"),
						Trigger:       models.TriggerKind(strings.ToUpper(cmd.String("trigger"))),
						Action:        models.ActionKind(strings.ToUpper(cmd.String("action"))),
						CustomMessage: cmd.String("message"),
					}
					if cmd.IsSet("delay-hours") {
						h := int(cmd.Int("delay-hours"))
						flow.DelayHours = &h
					}
					if err := a.controller.CreateFlow(ctx, flow); err != nil {
						return err
					}
					fmt.Printf("✅ Flow created: %s (DRAFT)\n", flow.ID)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List flows with execution counts",
				Flags: []cli.Flag{eventFlag()},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					eventID, err := a.eventID(ctx, cmd)
					if err != nil {
						return err
					}
					return printFlows(ctx, os.Stdout, a.controller, eventID)
				}),
			},
			flowStatusCommand("activate", "Activate a flow and schedule it for existing guests", models.FlowActive),
			flowStatusCommand("pause", "Pause a flow", models.FlowPaused),
			flowStatusCommand("archive", "Archive a flow", models.FlowArchived),
			{
				Name:      "delete",
				Usage:     "Delete a flow and its execution records",
				ArgsUsage: "<flow-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					id, err := requireArg(cmd, "flow-id")
					if err != nil {
						return err
					}
					return a.controller.DeleteFlow(ctx, id)
				}),
			},
			{
				Name:      "executions",
				Usage:     "List a flow's execution records",
				ArgsUsage: "<flow-id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "status", Usage: "Only records in these statuses"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					id, err := requireArg(cmd, "flow-id")
					if err != nil {
						return err
					}
					statuses, err := parseExecutionStatuses(cmd.StringSlice("status"))
					if err != nil {
						return err
					}
					executions, err := a.controller.Executions(ctx, id, statuses...)
					if err != nil {
						return err
					}
					printExecutions(os.Stdout, executions)
					return nil
				}),
			},
			{
				Name:      "cancel",
				Usage:     "Skip every PENDING record of a flow",
				ArgsUsage: "<flow-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					id, err := requireArg(cmd, "flow-id")
					if err != nil {
						return err
					}
					n, err := a.controller.CancelPending(ctx, id)
					if err != nil {
						return err
					}
					fmt.Printf("Cancelled %d pending execution(s).\n", n)
					return nil
				}),
			},
			{
				Name:      "retry",
				Usage:     "Re-run every FAILED record of an ACTIVE flow",
				ArgsUsage: "<flow-id>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					id, err := requireArg(cmd, "flow-id")
					if err != nil {
						return err
					}
					report, err := a.controller.RetryFailed(ctx, id)
					if err != nil {
						return err
					}
					fmt.Printf("Retried: %s\n", report)
					return nil
				}),
			},
		},
	}
}

func flowStatusCommand(name, usage string, status models.FlowStatus) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<flow-id>",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			id, err := requireArg(cmd, "flow-id")
			if err != nil {
				return err
			}
			report, err := a.controller.SetFlowStatus(ctx, id, status)
			if err != nil {
				return err
			}
			fmt.Printf("Flow %s is now %s (%s)\n", id, status, report)
			return nil
		}),
	}
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	if cmd.Args().Len() < 1 {
		return "", fmt.Errorf("missing <%s>", name)
	}
	return cmd.Args().First(), nil
}

func printGuests(w io.Writer, guests []models.Guest) {
	if len(guests) == 0 {
		fmt.Fprintln(w, "\nNo guests found.")
		return
	}

	fmt.Fprintf(w, "\n📋 Guests (%d total):\n", len(guests))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, guest := range guests {
		fmt.Fprintf(w, "Name: %s\n", guest.Name)
		fmt.Fprintf(w, "Phone: %s\n", guest.PhoneNumber)
		fmt.Fprintf(w, "Status: %s\n", guest.RSVPStatus)
		if guest.RSVPDate != nil {
			fmt.Fprintf(w, "RSVP Date: %s\n", guest.RSVPDate.Local().Format(listTimeLayout))
		}
		if guest.LastNotifiedAt != nil {
			fmt.Fprintf(w, "Last Message: %s\n", guest.LastNotifiedAt.Local().Format(listTimeLayout))
		}
		if guest.TableName != "" {
			fmt.Fprintf(w, "Table: %s\n", guest.TableName)
		}
		fmt.Fprintln(w, strings.Repeat("-", 60))
	}
}

func printFlows(ctx context.Context, w io.Writer, controller *automation.Controller, eventID string) error {
	flows, err := controller.Flows(ctx, eventID)
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		fmt.Fprintln(w, "\nNo flows found.")
		return nil
	}

	fmt.Fprintf(w, "\n⚙️  Flows (%d total):\n", len(flows))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, f := range flows {
		stats, err := controller.FlowStats(ctx, f.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  [%s]  %s\n", f.ID, f.Status, f.Name)
		fmt.Fprintf(w, "  %s -> %s", f.Trigger, f.Action)
		if f.DelayHours != nil {
			fmt.Fprintf(w, " (delay %dh)", *f.DelayHours)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  pending=%d processing=%d completed=%d failed=%d skipped=%d\n",
			stats[models.ExecutionPending], stats[models.ExecutionProcessing], stats[models.ExecutionCompleted],
			stats[models.ExecutionFailed], stats[models.ExecutionSkipped])
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	return nil
}

func printExecutions(w io.Writer, executions []models.Execution) {
	if len(executions) == 0 {
		fmt.Fprintln(w, "\nNo executions found.")
		return
	}
	for _, x := range executions {
		when := "-"
		if x.ScheduledFor != nil {
			when = x.ScheduledFor.Local().Format(listTimeLayout)
		}
		fmt.Fprintf(w, "%s  guest=%s  %-10s  scheduled=%s  retries=%d", x.ID, x.GuestID, x.Status, when, x.RetryCount)
		if x.ErrorMessage != "" {
			fmt.Fprintf(w, "  %s: %s", x.ErrorCode, x.ErrorMessage)
		}
		fmt.Fprintln(w)
	}
}
