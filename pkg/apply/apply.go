// Package apply executes the actions of a sync plan against the replica
// tree: copying new or changed files from the source and removing files that
// no longer exist there. The applier retains no state between calls; its only
// observable effects are directory creation and file mutation.
package apply

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/replik-io/replik/pkg/pool"
	"github.com/replik-io/replik/pkg/scan"
	"github.com/replik-io/replik/pkg/util"
)

// Applier performs copy and delete actions on the replica root.
type Applier struct {
	replicaRoot string
	bufPool     *pool.BufferPool
}

// New creates an Applier for the given replica root. A nil bufPool gets a
// private default-sized pool.
func New(replicaRoot string, bufPool *pool.BufferPool) *Applier {
	if bufPool == nil {
		bufPool = pool.NewBufferPool(pool.DefaultBufferSize)
	}
	return &Applier{replicaRoot: replicaRoot, bufPool: bufPool}
}

// Copy ensures the destination directory chain exists, then copies the source
// file's bytes, permission bits, and modification time to the replica path,
// overwriting any existing file there. The first I/O failure is returned;
// retrying is the engine's decision (it does not retry).
// It returns the number of content bytes written.
func (a *Applier) Copy(entry scan.Entry) (int64, error) {
	absDstPath := util.DenormalizedAbsPath(a.replicaRoot, entry.RelPath)

	absDstDir := filepath.Dir(absDstPath)
	if err := os.MkdirAll(absDstDir, util.UserWritableDirPerms); err != nil {
		return 0, fmt.Errorf("failed to create replica directory %s: %w", absDstDir, err)
	}

	in, err := os.Open(entry.AbsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", entry.AbsPath, err)
	}
	defer in.Close()

	// O_TRUNC clears any existing replica file. The user-write bit is always
	// set so a read-only source cannot lock us out of the replica on the
	// next run.
	out, err := os.OpenFile(absDstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.WithUserWritePermission(entry.Mode.Perm()))
	if err != nil {
		return 0, fmt.Errorf("failed to open replica file %s: %w", absDstPath, err)
	}
	defer out.Close()

	// Explicit Chmod: OpenFile perms only apply when the file is created.
	if err := out.Chmod(util.WithUserWritePermission(entry.Mode.Perm())); err != nil {
		return 0, fmt.Errorf("failed to set permissions on %s: %w", absDstPath, err)
	}

	bufPtr := a.bufPool.Get()
	defer a.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	written, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		return written, fmt.Errorf("failed to copy content from %s to %s: %w", entry.AbsPath, absDstPath, err)
	}

	// Close before Chtimes; flushing may itself bump the modification time.
	if err := out.Close(); err != nil {
		return written, fmt.Errorf("failed to close replica file %s: %w", absDstPath, err)
	}

	if err := os.Chtimes(absDstPath, entry.ModTime, entry.ModTime); err != nil {
		return written, fmt.Errorf("failed to set timestamps on %s: %w", absDstPath, err)
	}

	return written, nil
}

// Delete removes the file at the entry's replica path. A path that cannot be
// removed is an error, a nonexistent path included: the plan was computed
// from a scan of this same tree, so a missing file means the replica changed
// underneath the run.
func (a *Applier) Delete(entry scan.Entry) error {
	absPath := util.DenormalizedAbsPath(a.replicaRoot, entry.RelPath)
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("failed to remove %s from replica: %w", absPath, err)
	}
	return nil
}
