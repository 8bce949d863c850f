package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "wedding-automation",
		Usage:                 "Automate wedding RSVP messaging over WhatsApp",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error); overrides the config file",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable log output even when not attached to a terminal",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			eventCommand(),
			guestCommand(),
			flowCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
