//go:build windows

package preflight

import "errors"

// platformAvailableSpace is not implemented on Windows; callers skip the
// staging-space check there.
func platformAvailableSpace(path string) (uint64, error) {
	return 0, errors.ErrUnsupported
}
