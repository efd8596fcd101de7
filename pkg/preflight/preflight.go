// Package preflight provides the validation that runs before the first
// synchronization. These checks are stateless and idempotent: they ensure the
// configured roots are usable without changing the system's state themselves.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckReplicaAccessible validates that the replica path exists, is a
// directory, and is writable by the current user.
func CheckReplicaAccessible(replicaPath string) error {
	info, err := os.Stat(replicaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("replica directory %s does not exist", replicaPath)
		}
		return fmt.Errorf("cannot stat replica directory %s: %w", replicaPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("replica path %s is not a directory", replicaPath)
	}

	// A probe write catches read-only mounts before the run mutates anything.
	probe, err := os.CreateTemp(replicaPath, ".~replik-preflight-*")
	if err != nil {
		return fmt.Errorf("replica directory %s is not writable: %w", replicaPath, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// CheckDistinctRoots rejects a source/replica pair that is the same directory
// or where one is nested inside the other. A nested pair would make the
// engine scan its own output and either recurse or delete the source's
// mirror of itself.
func CheckDistinctRoots(srcPath, replicaPath string) error {
	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return fmt.Errorf("cannot resolve source path %s: %w", srcPath, err)
	}
	absReplica, err := filepath.Abs(replicaPath)
	if err != nil {
		return fmt.Errorf("cannot resolve replica path %s: %w", replicaPath, err)
	}

	// Symlinked spellings of the same directory count as the same directory.
	if resolved, err := filepath.EvalSymlinks(absSrc); err == nil {
		absSrc = resolved
	}
	if resolved, err := filepath.EvalSymlinks(absReplica); err == nil {
		absReplica = resolved
	}

	if absSrc == absReplica {
		return fmt.Errorf("source and replica must not be the same directory: %s", absSrc)
	}
	if isSubPath(absSrc, absReplica) {
		return fmt.Errorf("replica %s is nested inside source %s", absReplica, absSrc)
	}
	if isSubPath(absReplica, absSrc) {
		return fmt.Errorf("source %s is nested inside replica %s", absSrc, absReplica)
	}
	return nil
}

// StagingSpace estimates whether the staging volume can hold a full snapshot
// of the replica. It returns the bytes a snapshot requires (the replica's
// current content size) and the bytes available on the volume holding
// stagingDir. On platforms without the query the available count is reported
// as unknown via errors.ErrUnsupported; callers should treat that as "skip
// the check", not as a failure.
func StagingSpace(replicaRoot, stagingDir string) (required, available uint64, err error) {
	err = filepath.Walk(replicaRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Unreadable entries are the run's problem, not preflight's.
		}
		if info.Mode().IsRegular() {
			required += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to size replica %s: %w", replicaRoot, err)
	}

	available, err = platformAvailableSpace(stagingDir)
	if err != nil {
		return required, 0, err
	}
	return required, available, nil
}

func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
