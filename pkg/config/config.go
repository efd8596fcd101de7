// Package config holds the run configuration of the replik binary and its
// validation. Validation runs once, before the first synchronization; a
// configuration that fails it never reaches the engine.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/replik-io/replik/pkg/preflight"
)

// Config is the full configuration of one replik process.
type Config struct {
	// Source is the directory treated as the source of truth.
	Source string
	// Replica is the directory made identical to Source on every run.
	Replica string
	// Interval is the pause between the end of one run and the start of the
	// next.
	Interval time.Duration
	// LogFile receives the timestamped log lines in addition to the console.
	LogFile string

	// SnapshotFormat selects the staging layout: "dir", "tar.gz" or "tar.zst".
	SnapshotFormat string
	// Once disables the scheduler and performs a single run.
	Once bool
	// Quiet suppresses console output below warning level.
	Quiet bool
}

// Validate checks the directory pair before the first run: both roots must
// exist and be directories, the replica must be writable, and the two paths
// must be distinct and non-nested.
func (c *Config) Validate() error {
	if c.Interval <= 0 && !c.Once {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if err := preflight.CheckSourceAccessible(c.Source); err != nil {
		return err
	}
	if err := preflight.CheckReplicaAccessible(c.Replica); err != nil {
		return err
	}
	return preflight.CheckDistinctRoots(c.Source, c.Replica)
}

// LogStagingSpaceHint warns when the volume used for snapshot staging does
// not have room for a full copy of the replica. This is advisory: a tight
// volume fails the snapshot itself later, with rollback semantics intact.
func (c *Config) LogStagingSpaceHint(log *slog.Logger) {
	required, available, err := preflight.StagingSpace(c.Replica, os.TempDir())
	if err != nil {
		log.Debug("Skipping staging space check", "error", err)
		return
	}
	if available < required {
		log.Warn("Staging volume may be too small for a replica snapshot",
			"required", required,
			"available", available,
			"stagingDir", os.TempDir(),
		)
	}
}
