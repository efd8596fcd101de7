// Package snapshot implements the backup manager that protects the replica
// during a run. Before any mutation, the replica's current file content is
// captured into a temporary staging directory; on failure the staged content
// is restored; the staging directory is always removed at the end of the run.
//
// The snapshot can be stored as a plain mirrored tree (the default) or as a
// single compressed tar archive, which trades restore speed for staging
// footprint on large replicas.
package snapshot

import (
	"fmt"
	"os"

	"github.com/replik-io/replik/pkg/pool"
	"github.com/replik-io/replik/pkg/scan"
)

// stagingPattern names the temporary staging directories created per run.
const stagingPattern = "replik-staging-*"

// store abstracts the on-disk layout of a snapshot.
type store interface {
	// write captures the given replica entries into the staging directory.
	write(staging, replicaRoot string, entries map[string]scan.Entry) (int, error)
	// restore reinstates every captured file into the replica root.
	restore(staging, replicaRoot string) error
}

// Manager owns the snapshot lifecycle of a single run. Ownership of the
// staging directory belongs exclusively to the run that created it.
type Manager struct {
	format       Format
	bufPool      *pool.BufferPool
	excludeFiles []string
}

// NewManager creates a snapshot manager. excludeFiles lists basenames that
// are never staged (the advisory lock file lives inside the replica root and
// must not be resurrected by a restore). A nil bufPool gets a private
// default-sized pool.
func NewManager(format Format, bufPool *pool.BufferPool, excludeFiles []string) *Manager {
	if bufPool == nil {
		bufPool = pool.NewBufferPool(pool.DefaultBufferSize)
	}
	return &Manager{
		format:       format,
		bufPool:      bufPool,
		excludeFiles: excludeFiles,
	}
}

// Snapshot copies every current file under replicaRoot into a freshly created
// staging directory, preserving relative structure, and returns the staging
// path and the number of files captured. It must complete before any mutation
// of the replica begins; its own failure is fatal for the run and leaves no
// staging directory behind.
func (m *Manager) Snapshot(replicaRoot string) (string, int, error) {
	scanner := &scan.Scanner{ExcludeFiles: m.excludeFiles}
	entries, err := scanner.Scan(replicaRoot)
	if err != nil {
		return "", 0, fmt.Errorf("failed to scan replica for snapshot: %w", err)
	}

	staging, err := os.MkdirTemp("", stagingPattern)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staging directory: %w", err)
	}

	files, err := m.store().write(staging, replicaRoot, entries)
	if err != nil {
		os.RemoveAll(staging)
		return "", 0, fmt.Errorf("failed to stage replica content: %w", err)
	}
	return staging, files, nil
}

// Restore overwrites (or recreates) every file recorded in the staging
// directory with its staged content.
//
// Known limitation: only files that
// existed in the replica at snapshot time are reinstated. Files newly created
// by a partially applied copy-set during the failed run are not removed, so
// true all-or-nothing atomicity is not guaranteed.
func (m *Manager) Restore(staging, replicaRoot string) error {
	if err := m.store().restore(staging, replicaRoot); err != nil {
		return fmt.Errorf("failed to restore replica from snapshot: %w", err)
	}
	return nil
}

// Discard unconditionally removes the staging directory. It is invoked
// exactly once per run regardless of outcome.
func (m *Manager) Discard(staging string) error {
	if staging == "" {
		return nil
	}
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %w", staging, err)
	}
	return nil
}

func (m *Manager) store() store {
	switch m.format {
	case FormatTarGz, FormatTarZst:
		return &tarStore{format: m.format, bufPool: m.bufPool}
	default:
		return &dirStore{bufPool: m.bufPool}
	}
}
