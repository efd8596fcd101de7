// replik mirrors a source directory into a replica directory on a fixed
// interval, snapshotting the replica before every run so a failed run can
// be rolled back.
//
// Usage:
//
//	replik [flags] <source> <replica> <interval-minutes> <log-file>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/replik-io/replik/pkg/config"
	"github.com/replik-io/replik/pkg/engine"
	"github.com/replik-io/replik/pkg/plog"
	"github.com/replik-io/replik/pkg/sched"
	"github.com/replik-io/replik/pkg/snapshot"
)

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <source> <replica> <interval-minutes> <log-file>\n\nFlags:\n", os.Args[0])
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

func main() {
	fs := flag.NewFlagSet("replik", flag.ExitOnError)
	snapshotFormat := fs.String("snapshot-format", snapshot.FormatDir.String(), "snapshot staging layout: dir, tar.gz or tar.zst")
	once := fs.Bool("once", false, "perform a single run and exit")
	quiet := fs.Bool("quiet", false, "suppress console output below warning level")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Usage = func() { usage(fs) }
	fs.Parse(os.Args[1:])

	if fs.NArg() != 4 {
		usage(fs)
		os.Exit(2)
	}

	intervalMinutes, err := strconv.ParseFloat(fs.Arg(2), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid interval %q: %v\n", fs.Arg(2), err)
		usage(fs)
		os.Exit(2)
	}

	cfg := &config.Config{
		Source:         fs.Arg(0),
		Replica:        fs.Arg(1),
		Interval:       time.Duration(intervalMinutes * float64(time.Minute)),
		LogFile:        fs.Arg(3),
		SnapshotFormat: *snapshotFormat,
		Once:           *once,
		Quiet:          *quiet,
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	if err := run(cfg, level); err != nil {
		// run logs its own errors; the message here covers early failures
		// before the logger exists.
		fmt.Fprintf(os.Stderr, "replik: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, level slog.Level) error {
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	log := plog.New(plog.Options{
		Level:        level,
		Console:      os.Stdout,
		QuietConsole: cfg.Quiet,
		File:         logFile,
	})

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		return err
	}
	cfg.LogStagingSpaceHint(log)

	format, err := snapshot.ParseFormat(cfg.SnapshotFormat)
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg.Source, cfg.Replica, log, engine.Options{
		SnapshotFormat: format,
	})

	if cfg.Once {
		return eng.Run(ctx)
	}

	// Run errors are logged and the loop keeps ticking; only an interrupt
	// ends the process, and that is a clean exit.
	sched.New(cfg.Interval, log, eng.Run).Loop(ctx)
	return nil
}
