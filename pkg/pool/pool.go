// Package pool provides reusable I/O buffers shared by the fingerprinting,
// copy, and snapshot code paths. Pooling keeps the per-file working memory
// constant regardless of how many files a run touches.
package pool

import "sync"

// DefaultBufferSize is the block size used for streaming file I/O (64 KiB).
const DefaultBufferSize = 64 * 1024

// BufferPool hands out fixed-size byte slices backed by a sync.Pool.
// Buffers are stored as *[]byte to avoid an allocation on every Put.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size in bytes.
// A size <= 0 falls back to DefaultBufferSize.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Get retrieves a buffer from the pool. The returned pointer must be handed
// back via Put when the caller is done with it.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. The slice length is reset to its full
// capacity so the next io.CopyBuffer user gets the whole block.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) != bp.size {
		return // Foreign or resized buffer, drop it.
	}
	*buf = (*buf)[:cap(*buf)]
	bp.pool.Put(buf)
}

// Size returns the buffer size this pool hands out.
func (bp *BufferPool) Size() int {
	return bp.size
}
