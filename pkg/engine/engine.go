// Package engine orchestrates one full synchronization run: snapshot the
// replica, scan both roots, compute the plan, apply it, and roll back from
// the snapshot if anything fails after mutation began.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/replik-io/replik/pkg/apply"
	"github.com/replik-io/replik/pkg/fingerprint"
	"github.com/replik-io/replik/pkg/lockfile"
	"github.com/replik-io/replik/pkg/metrics"
	"github.com/replik-io/replik/pkg/plan"
	"github.com/replik-io/replik/pkg/pool"
	"github.com/replik-io/replik/pkg/scan"
	"github.com/replik-io/replik/pkg/snapshot"
)

// ErrRunActive is returned when Run is called while another run on the same
// Engine is still in flight. Runs never interleave; the caller decides
// whether to skip or wait.
var ErrRunActive = errors.New("a synchronization run is already active for this engine")

// Options tunes an Engine beyond the two roots.
type Options struct {
	// SnapshotFormat selects the staging layout. Zero value is a plain tree.
	SnapshotFormat snapshot.Format
	// BufferSize is the streaming I/O block size in bytes; <= 0 uses the
	// default 64 KiB.
	BufferSize int
	// DisableMetrics replaces the run counters with no-ops.
	DisableMetrics bool
	// DisableLock skips the advisory lock file in the replica root. Meant
	// for callers that already serialize runs externally.
	DisableLock bool
}

// Engine performs one-way mirror runs from a source root to a replica root.
// A run is single-threaded, synchronous, blocking I/O throughout; the Engine
// guards against overlapping runs on itself, and via the replica lock file
// against other processes, but two processes that both disable the lock are
// on their own.
type Engine struct {
	source  string
	replica string
	log     *slog.Logger

	scanner *scan.Scanner
	calc    *fingerprint.Calculator
	snap    *snapshot.Manager
	applier *apply.Applier

	opts   Options
	runSem *semaphore.Weighted
	state  atomic.Int64
}

// New creates an Engine for the given roots. The logger is a mandatory
// dependency; its lifecycle is owned by the caller.
func New(source, replica string, log *slog.Logger, opts Options) *Engine {
	bufPool := pool.NewBufferPool(opts.BufferSize)
	systemExcludes := []string{lockfile.LockFileName}

	return &Engine{
		source:  source,
		replica: replica,
		log:     log,
		scanner: &scan.Scanner{ExcludeFiles: systemExcludes},
		calc:    fingerprint.NewCalculator(bufPool),
		snap:    snapshot.NewManager(opts.SnapshotFormat, bufPool, systemExcludes),
		applier: apply.New(replica, bufPool),
		opts:    opts,
		runSem:  semaphore.NewWeighted(1),
	}
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	prev := State(e.state.Swap(int64(s)))
	e.log.Debug("State transition", "from", prev, "to", s)
}

// Run executes one full synchronization. It is not cancellable mid-flight:
// ctx is only consulted before any work starts. Errors within a run are
// returned after the rollback protocol completed; they never escape as
// panics, and the staging directory is discarded on every path.
func (e *Engine) Run(ctx context.Context) error {
	if !e.runSem.TryAcquire(1) {
		return ErrRunActive
	}
	defer e.runSem.Release(1)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	e.log.Info("Synchronization started", "source", e.source, "replica", e.replica)

	if !e.opts.DisableLock {
		release, err := e.acquireReplicaLock(ctx)
		if err != nil {
			return err
		}
		if release == nil {
			return nil // Lock held elsewhere, run skipped gracefully.
		}
		defer release()
	}

	m := e.newMetrics()

	// --- Snapshotting ---
	e.setState(StateSnapshotting)
	staging, snapFiles, err := e.snap.Snapshot(e.replica)
	if err != nil {
		// Nothing has been mutated yet, so there is no rollback; the run
		// simply aborts.
		e.setState(StateIdle)
		return fmt.Errorf("snapshot failed: %w", err)
	}
	m.AddFilesSnapshotted(int64(snapFiles))

	// The staging directory is removed exactly once per run, success or not.
	defer func() {
		if err := e.snap.Discard(staging); err != nil {
			e.log.Warn("Failed to discard staging directory", "error", err)
		}
		e.setState(StateIdle)
	}()

	if err := e.syncReplica(m); err != nil {
		e.rollback(staging, err)
		return err
	}

	e.setState(StateCompleted)
	e.log.Info("Synchronization completed")
	m.Log(e.log)
	return nil
}

// syncReplica covers the Scanning and Applying phases. Any returned error
// triggers the rollback protocol in Run.
func (e *Engine) syncReplica(m metrics.Metrics) error {
	e.setState(StateScanning)

	srcEntries, err := e.scanner.Scan(e.source)
	if err != nil {
		return fmt.Errorf("source scan failed: %w", err)
	}
	repEntries, err := e.scanner.Scan(e.replica)
	if err != nil {
		return fmt.Errorf("replica scan failed: %w", err)
	}

	p, err := plan.Build(srcEntries, repEntries, e.calc.File)
	if err != nil {
		return fmt.Errorf("plan computation failed: %w", err)
	}
	m.AddFilesUpToDate(int64(len(srcEntries) - len(p.Copies)))

	e.setState(StateApplying)

	// Copies strictly before deletes: a file that both needs updating and
	// whose directory is being vacated must never be lost prematurely.
	for _, entry := range p.Copies {
		e.log.Info("COPY", "path", entry.RelPath)
		written, err := e.applier.Copy(entry)
		m.AddBytesCopied(written)
		if err != nil {
			return fmt.Errorf("copy of %s failed: %w", entry.RelPath, err)
		}
		m.AddFilesCopied(1)
	}
	for _, entry := range p.Deletes {
		e.log.Info("DELETE", "path", entry.RelPath)
		if err := e.applier.Delete(entry); err != nil {
			return fmt.Errorf("delete of %s failed: %w", entry.RelPath, err)
		}
		m.AddFilesDeleted(1)
	}
	return nil
}

// rollback reinstates the pre-run content of files captured in the snapshot.
// A restore failure is reported but never blocks staging cleanup.
func (e *Engine) rollback(staging string, cause error) {
	e.setState(StateRollingBack)
	e.log.Error("Synchronization failed, rolling back", "error", cause)

	if err := e.snap.Restore(staging, e.replica); err != nil {
		e.log.Error("Rollback failed", "error", err)
		return
	}
	e.log.Info("Rollback completed")
}

// acquireReplicaLock takes the advisory lock in the replica root. It returns
// a nil release func without error when another live process holds the lock,
// which callers treat as a graceful skip.
func (e *Engine) acquireReplicaLock(ctx context.Context) (func(), error) {
	appID := fmt.Sprintf("replik:%s", e.replica)

	lock, err := lockfile.Acquire(ctx, e.replica, appID, e.log)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			e.log.Warn("A run is already active for this replica, skipping", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire replica lock: %w", err)
	}
	return lock.Release, nil
}

func (e *Engine) newMetrics() metrics.Metrics {
	if e.opts.DisableMetrics {
		return &metrics.NoopMetrics{}
	}
	return &metrics.RunMetrics{}
}
