package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v3"

	"wedding-automation/internal/action"
	"wedding-automation/internal/automation"
	"wedding-automation/internal/config"
	"wedding-automation/internal/logging"
	"wedding-automation/internal/models"
	"wedding-automation/internal/storage"
)

// app holds what every command needs: configuration, logger, store and
// the automation engine on top of it.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *storage.SQLite
	engine     *automation.Engine
	controller *automation.Controller
}

// openApp loads configuration and opens the store. Call build before
// using the engine.
func openApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	logger := logging.Setup(cfg.LogLevel, cmd.Bool("pretty"))

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	store, err := storage.OpenSQLite(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("database", cfg.Database).Msg("Store opened")

	return &app{cfg: cfg, log: logger, store: store}, nil
}

// build wires the executor and engine. A nil transport leaves the
// WhatsApp channel without credentials.
func (a *app) build(transport action.Transport, opts ...automation.Option) error {
	templates, err := a.cfg.ActionTemplates()
	if err != nil {
		return err
	}

	executor := action.NewExecutor(action.Config{
		Channels: map[action.Channel]action.ChannelConfig{
			action.ChannelWhatsApp: {Enabled: a.cfg.WhatsApp.Enabled, Transport: transport},
			action.ChannelSMS:      {Enabled: a.cfg.SMS.Enabled},
		},
		Templates:  templates,
		DateLayout: a.cfg.Messages.DateLayout,
		TimeLayout: a.cfg.Messages.TimeLayout,
	}, a.store, a.log)

	a.engine = automation.New(a.store, executor, automation.Config{
		RSVPBaseURL: a.cfg.RSVPBaseURL,
		SendTimeout: a.cfg.SendTimeout,
		StaleAfter:  a.cfg.Sweep.StaleAfter,
		SweepBatch:  a.cfg.Sweep.Batch,
	}, a.log, opts...)
	a.controller = automation.NewController(a.engine)
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close store")
	}
}

// withApp opens the app, builds an engine without a live transport and
// runs fn.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.build(nil); err != nil {
			return err
		}
		return fn(ctx, cmd, a)
	}
}

// eventID resolves the event a command works on: the --event flag, the
// configured wedding, or the only event in the store.
func (a *app) eventID(ctx context.Context, cmd *cli.Command) (string, error) {
	if cmd.IsSet("event") {
		return cmd.String("event"), nil
	}

	wedding, ok, err := a.cfg.WeddingEvent()
	if err != nil {
		return "", err
	}
	events, err := a.store.Events(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		for _, e := range events {
			if e.Name == wedding.Name && e.StartsAt.Equal(wedding.StartsAt) {
				return e.ID, nil
			}
		}
		if err := a.store.CreateEvent(ctx, wedding); err != nil {
			return "", fmt.Errorf("failed to create configured event: %w", err)
		}
		a.log.Info().Str("event_id", wedding.ID).Str("name", wedding.Name).Msg("Event created from configuration")
		return wedding.ID, nil
	}

	switch len(events) {
	case 0:
		return "", errors.New("no event found: run `event create` or configure wedding.name and wedding.date")
	case 1:
		return events[0].ID, nil
	default:
		return "", errors.New("several events exist: pass --event")
	}
}

func eventFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "event",
		Usage: "Event id (defaults to the configured wedding)",
	}
}

func parseExecutionStatuses(values []string) ([]models.ExecutionStatus, error) {
	statuses := make([]models.ExecutionStatus, 0, len(values))
	for _, v := range values {
		s := models.ExecutionStatus(strings.ToUpper(v))
		switch s {
		case models.ExecutionPending, models.ExecutionProcessing, models.ExecutionCompleted,
			models.ExecutionFailed, models.ExecutionSkipped:
			statuses = append(statuses, s)
		default:
			return nil, fmt.Errorf("unknown execution status %q", v)
		}
	}
	return statuses, nil
}
