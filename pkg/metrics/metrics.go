// Package metrics collects per-run synchronization counters.
package metrics

import (
	"log/slog"
	"sync/atomic"
)

// Metrics defines the interface for collecting and reporting run statistics.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesDeleted(n int64)
	AddFilesUpToDate(n int64)
	AddFilesSnapshotted(n int64)
	AddBytesCopied(n int64)
	Log(log *slog.Logger)
}

// RunMetrics holds the atomic counters for one synchronization run.
// It is the concrete implementation of the Metrics interface.
type RunMetrics struct {
	FilesCopied      atomic.Int64
	FilesDeleted     atomic.Int64
	FilesUpToDate    atomic.Int64
	FilesSnapshotted atomic.Int64
	BytesCopied      atomic.Int64
}

func (m *RunMetrics) AddFilesCopied(n int64)      { m.FilesCopied.Add(n) }
func (m *RunMetrics) AddFilesDeleted(n int64)     { m.FilesDeleted.Add(n) }
func (m *RunMetrics) AddFilesUpToDate(n int64)    { m.FilesUpToDate.Add(n) }
func (m *RunMetrics) AddFilesSnapshotted(n int64) { m.FilesSnapshotted.Add(n) }
func (m *RunMetrics) AddBytesCopied(n int64)      { m.BytesCopied.Add(n) }

// Log prints a summary of the run.
func (m *RunMetrics) Log(log *slog.Logger) {
	log.Info("SUM",
		"filesCopied", m.FilesCopied.Load(),
		"filesDeleted", m.FilesDeleted.Load(),
		"filesUpToDate", m.FilesUpToDate.Load(),
		"filesSnapshotted", m.FilesSnapshotted.Load(),
		"bytesCopied", m.BytesCopied.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables metrics collection without changing calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCopied(n int64)      {}
func (m *NoopMetrics) AddFilesDeleted(n int64)     {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)    {}
func (m *NoopMetrics) AddFilesSnapshotted(n int64) {}
func (m *NoopMetrics) AddBytesCopied(n int64)      {}
func (m *NoopMetrics) Log(log *slog.Logger)        {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
