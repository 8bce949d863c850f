package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v3"

	"wedding-automation/internal/action"
	"wedding-automation/internal/automation"
	"wedding-automation/internal/handler"
	"wedding-automation/internal/whatsapp"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect to WhatsApp, answer RSVPs and run the flow sweep",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-console",
				Usage: "Do not start the interactive console",
			},
		},
		Action: runService,
	}
}

func runService(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventID, err := a.eventID(ctx, cmd)
	if err != nil {
		return err
	}

	var (
		wa        *whatsapp.Service
		transport action.Transport
	)
	if a.cfg.WhatsApp.Enabled {
		wa, err = whatsapp.NewService(ctx, &whatsapp.Config{DataDir: a.cfg.DataDir}, a.log)
		if err != nil {
			return fmt.Errorf("failed to initialize WhatsApp service: %w", err)
		}
		transport = wa
	}

	var opts []automation.Option
	if a.cfg.Metrics.Enabled {
		opts = append(opts, automation.WithMetrics(automation.NewMetrics(prometheus.DefaultRegisterer)))
	}
	if err := a.build(transport, opts...); err != nil {
		return err
	}

	rsvp := handler.NewRSVPHandler(a.store, a.controller, &handler.Config{EventID: eventID}, a.log)

	if wa != nil {
		wa.SetMessageHandler(rsvp.HandleMessage)
		fmt.Println("Connecting to WhatsApp...")
		if err := wa.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		defer wa.Disconnect()
		fmt.Println("✅ Connected to WhatsApp! Listening for RSVP responses.")
	}

	scheduler, err := startSweep(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	if a.cfg.Metrics.Enabled {
		srv := newStatusServer(a, wa)
		go func() {
			a.log.Info().Str("addr", srv.Addr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Msg("Metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error().Err(err).Msg("Failed to stop metrics server")
			}
		}()
	}

	if !cmd.Bool("no-console") && isatty.IsTerminal(os.Stdin.Fd()) {
		c := &console{app: a, rsvp: rsvp, eventID: eventID, in: os.Stdin, out: os.Stdout}
		go func() {
			c.Run(ctx)
			stop()
		}()
	}

	<-ctx.Done()
	fmt.Println("\n\nShutting down...")
	return nil
}

// startSweep schedules the periodic sweep. Overlapping runs are skipped.
func startSweep(ctx context.Context, a *app) (*cron.Cron, error) {
	logger := cronLogger{log: a.log.With().Str("component", "cron").Logger()}
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	_, err := scheduler.AddFunc(a.cfg.Sweep.Schedule, func() {
		if _, err := a.engine.Sweep(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("Sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", a.cfg.Sweep.Schedule, err)
	}

	scheduler.Start()
	a.log.Info().Str("schedule", a.cfg.Sweep.Schedule).Msg("Sweep scheduled")
	return scheduler, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// newStatusServer serves /metrics and /healthz.
func newStatusServer(a *app, wa *whatsapp.Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "database": "ok"}

		if err := a.store.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		}
		if wa != nil {
			body["whatsapp"] = wa.Connected()
		}
		c.JSON(status, body)
	})

	return &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
