// Package util holds small path and permission helpers shared across packages.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
)

// WithUserWritePermission ensures that any directory/file permission has the
// owner-write bit (0200) set. This prevents the mirroring user from being
// locked out of the replica on subsequent runs when the source carries
// read-only permissions.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// NormalizePath converts a relative path to the canonical forward-slash form
// used as a map key across scans, plans, and snapshots.
func NormalizePath(relPath string) string {
	return filepath.ToSlash(relPath)
}

// NormalizedRelPath computes the forward-slash relative path of absPath under
// root. It fails if absPath does not live under root.
func NormalizedRelPath(root, absPath string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("could not get relative path of %s under %s: %w", absPath, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes root %s", absPath, root)
	}
	return NormalizePath(rel), nil
}

// DenormalizedAbsPath joins a normalized relative path key back onto a root,
// converting to the OS-native separator for filesystem access.
func DenormalizedAbsPath(root, relPathKey string) string {
	return filepath.Join(root, filepath.FromSlash(relPathKey))
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	return filepath.Join(home, path[1:]), nil
}
