// Package plog constructs the loggers used by the replik binary. The logger
// is always passed explicitly to the components that need it; this package
// only builds handlers, it keeps no process-wide state.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// FanoutHandler is a slog.Handler that duplicates every record to a set of
// underlying handlers. It is used to drive the console and the log file from
// a single logger instance.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler combines the given handlers into one.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Enabled reports whether any of the underlying handlers accepts the level.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle dispatches the record to every handler that accepts its level.
// The first error encountered is returned after all handlers ran.
func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs returns a new FanoutHandler with the given attributes added.
func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: next}
}

// WithGroup returns a new FanoutHandler with the given group.
func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &FanoutHandler{handlers: next}
}

// Options controls logger construction.
type Options struct {
	// Level is the minimum level emitted on both sinks.
	Level slog.Level
	// Console receives human-oriented output; typically os.Stdout.
	// Nil disables the console sink.
	Console io.Writer
	// QuietConsole raises the console sink to warning level. The file sink
	// keeps the configured Level.
	QuietConsole bool
	// File receives the timestamped log-file output. Nil disables it.
	File io.Writer
}

// New builds a logger that writes tinted output to the console and plain
// timestamped text lines to the log file. Color is only used when the
// console is an interactive terminal.
func New(opts Options) *slog.Logger {
	var handlers []slog.Handler

	if opts.Console != nil {
		noColor := true
		if f, ok := opts.Console.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		consoleLevel := opts.Level
		if opts.QuietConsole && consoleLevel < slog.LevelWarn {
			consoleLevel = slog.LevelWarn
		}
		handlers = append(handlers, tint.NewHandler(opts.Console, &tint.Options{
			Level:      consoleLevel,
			NoColor:    noColor,
			TimeFormat: time.TimeOnly,
		}))
	}

	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, &slog.HandlerOptions{
			Level: opts.Level,
		}))
	}

	if len(handlers) == 0 {
		// A logger that drops everything; keeps call sites nil-safe.
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(NewFanoutHandler(handlers...))
}

// NewTest builds a plain text logger for use in tests.
func NewTest(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
