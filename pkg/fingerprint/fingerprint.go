// Package fingerprint computes content digests used to decide whether two
// files are identical. The digest is xxh3-128: not a security primitive, but
// collision-resistant enough for change detection, and much cheaper than a
// cryptographic hash on large trees.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/replik-io/replik/pkg/pool"
)

// Size is the digest length in bytes.
const Size = 16

// Fingerprint is a fixed-length digest of a file's full byte content.
// Two files are considered identical iff their fingerprints are equal;
// names, timestamps, and permissions do not participate.
type Fingerprint [Size]byte

// String returns the digest as a lowercase hex string.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Calculator streams files through an incremental hash in fixed-size blocks,
// so arbitrarily large files are digested with bounded working memory.
type Calculator struct {
	bufPool *pool.BufferPool
}

// NewCalculator creates a Calculator drawing its read buffers from bufPool.
// A nil bufPool gets a private default-sized pool.
func NewCalculator(bufPool *pool.BufferPool) *Calculator {
	if bufPool == nil {
		bufPool = pool.NewBufferPool(pool.DefaultBufferSize)
	}
	return &Calculator{bufPool: bufPool}
}

// File digests the entire byte stream of the file at absPath. I/O errors
// (open failure, read failure mid-stream) propagate to the caller; there is
// no internal retry.
func (c *Calculator) File(absPath string) (Fingerprint, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open %s for fingerprinting: %w", absPath, err)
	}
	defer f.Close()

	h := xxh3.New()

	bufPtr := c.bufPool.Get()
	defer c.bufPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read %s while fingerprinting: %w", absPath, err)
	}

	return Fingerprint(h.Sum128().Bytes()), nil
}
