// Package logger builds the slog loggers used across streamchat: plain text
// for tests and pipes, JSON for services, and charmbracelet/log for the CLI.
// Credentials and bearer tokens are masked in every one of them.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level  slog.Level
	pretty bool
	json   bool
	source bool
	writer io.Writer
	redact map[string]struct{}
}

// New returns a *slog.Logger configured by opts. With no options it writes
// info-level text records to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:  slog.LevelInfo,
		writer: os.Stdout,
		redact: make(map[string]struct{}, len(RedactedKeys)),
	}
	for _, k := range RedactedKeys {
		c.redact[strings.ToLower(k)] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}

	w := c.writer
	if w == nil {
		w = os.Stdout
	}

	var h slog.Handler
	switch {
	case c.pretty:
		h = newCharmHandler(w, c)
	case c.json:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	}
	return slog.New(&redactHandler{next: h, keys: c.redact})
}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newCharmHandler(w io.Writer, c *config) *charmlog.Logger {
	level := charmlog.InfoLevel
	if c.level <= slog.LevelDebug {
		level = charmlog.DebugLevel
	}

	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    c.source,
	})
}
