package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/replik-io/replik/pkg/pool"
	"github.com/replik-io/replik/pkg/scan"
	"github.com/replik-io/replik/pkg/util"
)

// dirStore stages the replica as a plain mirrored tree under the staging
// directory, keyed by the same relative paths as the replica.
type dirStore struct {
	bufPool *pool.BufferPool
}

func (s *dirStore) write(staging, replicaRoot string, entries map[string]scan.Entry) (int, error) {
	files := 0
	for _, entry := range entries {
		absStagedPath := util.DenormalizedAbsPath(staging, entry.RelPath)
		if err := os.MkdirAll(filepath.Dir(absStagedPath), util.UserWritableDirPerms); err != nil {
			return files, fmt.Errorf("failed to create staging directory for %s: %w", entry.RelPath, err)
		}
		if err := s.copyFile(entry.AbsPath, absStagedPath, entry); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func (s *dirStore) restore(staging, replicaRoot string) error {
	scanner := &scan.Scanner{}
	staged, err := scanner.Scan(staging)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}

	for _, entry := range staged {
		absReplicaPath := util.DenormalizedAbsPath(replicaRoot, entry.RelPath)
		if err := os.MkdirAll(filepath.Dir(absReplicaPath), util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("failed to recreate replica directory for %s: %w", entry.RelPath, err)
		}
		if err := s.copyFile(entry.AbsPath, absReplicaPath, entry); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies bytes, permission bits, and modification time. O_TRUNC
// makes it an overwrite when the destination already exists.
func (s *dirStore) copyFile(absSrcPath, absDstPath string, entry scan.Entry) error {
	in, err := os.Open(absSrcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absSrcPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(absDstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.WithUserWritePermission(entry.Mode.Perm()))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absDstPath, err)
	}
	defer out.Close()

	if err := out.Chmod(util.WithUserWritePermission(entry.Mode.Perm())); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", absDstPath, err)
	}

	bufPtr := s.bufPool.Get()
	defer s.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", absSrcPath, absDstPath, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", absDstPath, err)
	}

	if err := os.Chtimes(absDstPath, entry.ModTime, entry.ModTime); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", absDstPath, err)
	}
	return nil
}
