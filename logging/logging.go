// Package logging builds the charmbracelet loggers used across GhostGrid and
// carries them through contexts.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// EnvLogLevel overrides the level chosen on the command line
const EnvLogLevel = "GHOSTGRID_LOG_LEVEL"

// New creates a logger with timestamp formatting filtered at level
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Level returns fallback unless EnvLogLevel names a valid level
func Level(fallback log.Level) log.Level {
	raw := strings.TrimSpace(os.Getenv(EnvLogLevel))
	if raw == "" {
		return fallback
	}
	lvl, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return fallback
	}
	return lvl
}

// ForRank tags l with the rank it logs for
func ForRank(l *log.Logger, rank int) *log.Logger {
	return l.With("rank", rank)
}

type ctxKey int

const loggerKey ctxKey = 0

// WithLogger returns a context carrying l
func WithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger carried by ctx, or log.Default()
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// Progress logs the elapsed time of one operation
type Progress struct {
	logger *log.Logger
	start  time.Time
}

// NewProgress starts timing an operation
func NewProgress(l *log.Logger) *Progress {
	return &Progress{logger: l, start: time.Now()}
}

// Done logs msg with the elapsed time
func (p *Progress) Done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
