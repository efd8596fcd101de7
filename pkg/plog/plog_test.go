package plog_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/replik-io/replik/pkg/plog"
)

func TestNewWritesToBothSinks(t *testing.T) {
	var console, file bytes.Buffer

	log := plog.New(plog.Options{
		Level:   slog.LevelInfo,
		Console: &console,
		File:    &file,
	})
	log.Info("hello", "key", "value")

	if !strings.Contains(console.String(), "hello") {
		t.Errorf("console output missing record: %q", console.String())
	}
	if !strings.Contains(file.String(), "hello") {
		t.Errorf("file output missing record: %q", file.String())
	}
	if !strings.Contains(file.String(), "key=value") {
		t.Errorf("file output missing attribute: %q", file.String())
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var console bytes.Buffer

	log := plog.New(plog.Options{
		Level:   slog.LevelWarn,
		Console: &console,
	})
	log.Info("below threshold")
	log.Warn("at threshold")

	out := console.String()
	if strings.Contains(out, "below threshold") {
		t.Error("info record leaked past warn level")
	}
	if !strings.Contains(out, "at threshold") {
		t.Error("warn record was dropped")
	}
}

// TestQuietConsole verifies that quiet mode only mutes the console; the log
// file keeps the full stream.
func TestQuietConsole(t *testing.T) {
	var console, file bytes.Buffer

	log := plog.New(plog.Options{
		Level:        slog.LevelInfo,
		Console:      &console,
		QuietConsole: true,
		File:         &file,
	})
	log.Info("routine")
	log.Warn("important")

	if strings.Contains(console.String(), "routine") {
		t.Error("quiet console still shows info records")
	}
	if !strings.Contains(console.String(), "important") {
		t.Error("quiet console dropped a warning")
	}
	if !strings.Contains(file.String(), "routine") {
		t.Error("log file lost the info record in quiet mode")
	}
}

func TestNewWithNoSinks(t *testing.T) {
	log := plog.New(plog.Options{})
	// Must not panic; everything is discarded.
	log.Info("into the void")
}

func TestFanoutHandlerWithAttrs(t *testing.T) {
	var a, b bytes.Buffer
	h := plog.NewFanoutHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	)

	log := slog.New(h).With("run", 7)
	log.Info("tagged")

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		if !strings.Contains(buf.String(), "run=7") {
			t.Errorf("%s handler missing shared attribute: %q", name, buf.String())
		}
	}
}
