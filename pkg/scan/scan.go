// Package scan enumerates the regular files under a root directory.
//
// A scan yields one Entry per regular file, keyed by the normalized relative
// path that identifies the logical file across the source and replica trees.
// Directories are traversed but never emitted; symlinks and other special
// files are skipped, consistently for both roots.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/replik-io/replik/pkg/util"
)

// Entry is a file discovered under a root.
type Entry struct {
	// RelPath is the normalized (forward-slash) path relative to the root.
	// It uniquely identifies the logical file within one scan.
	RelPath string
	// AbsPath is the OS-native absolute path used for filesystem access.
	AbsPath string

	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// Scanner walks a root directory tree.
type Scanner struct {
	// ExcludeFiles lists basenames that are never emitted, used for files the
	// system itself places inside the replica (the advisory lock file).
	ExcludeFiles []string
}

// Scan recursively enumerates every regular file reachable under root and
// returns the entries keyed by relative path. The walk is restartable: each
// call re-reads the filesystem. An unreadable root is an error; unreadable
// subtrees surface as errors too, because a partial scan would translate
// into spurious deletes from the plan.
func (s *Scanner) Scan(root string) (map[string]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	entries := make(map[string]Entry)
	err = filepath.WalkDir(root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access %s: %w", absPath, err)
		}
		if d.IsDir() {
			return nil // Directories are structural, not entries.
		}
		if !d.Type().IsRegular() {
			return nil // Symlinks, pipes, sockets are never mirrored.
		}
		if s.isExcluded(d.Name()) {
			return nil
		}

		relPath, err := util.NormalizedRelPath(root, absPath)
		if err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", absPath, err)
		}

		entries[relPath] = Entry{
			RelPath: relPath,
			AbsPath: absPath,
			Size:    fi.Size(),
			Mode:    fi.Mode(),
			ModTime: fi.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Scanner) isExcluded(basename string) bool {
	for _, name := range s.ExcludeFiles {
		if basename == name {
			return true
		}
	}
	return false
}
