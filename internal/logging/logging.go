// Package logging configures zerolog for the whole process.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Setup builds the root logger. Level names are zerolog's; anything
// unknown means info. Output is human readable when pretty is set or
// stderr is a terminal.
func Setup(level string, pretty bool) zerolog.Logger {
	return New(os.Stderr, level, pretty || isatty.IsTerminal(os.Stderr.Fd()))
}

// New builds a logger writing to w.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// WithComponent tags every entry of the returned logger with component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
