//go:build !windows

package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// platformAvailableSpace reports the bytes available to an unprivileged user
// on the filesystem holding path.
func platformAvailableSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
