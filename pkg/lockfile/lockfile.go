// Package lockfile implements an advisory lock on a replica root. The engine
// provides no mutual exclusion of its own, so overlapping runs against the
// same replica would interleave snapshots and mutations with undefined
// results; the lock file turns that documented constraint into a cheap
// cross-process guard. It is advisory only: a process that ignores the file
// is not stopped.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/replik-io/replik/pkg/util"
)

// LockFileName is the name of the lock file created in the replica root.
// The '~' prefix marks it as temporary.
const LockFileName = ".~replik.lock"

// LockContent defines the structure of the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	LastUpdate time.Time `json:"lastUpdate"`
	AppID      string    `json:"appID"`
}

// ErrLockActive is a structured error returned when a lock is already held by
// another process.
type ErrLockActive struct {
	PID       int64
	AppID     string
	TimeSince time.Duration
}

// Error implements the error interface for ErrLockActive.
func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d (App: %s), last updated %s ago", e.PID, e.AppID, e.TimeSince.Truncate(time.Second))
}

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 30 * time.Second
	// staleTimeout is defined in relation to the heartbeat to ensure a safe margin.
	staleTimeout = 3 * heartbeatInterval
)

// Lock manages the state of the acquired lock file.
type Lock struct {
	path  string
	appID string
	log   *slog.Logger
	// The context and cancel function stop the background heartbeat goroutine.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	// held tracks whether we actually hold the lock to prevent double release.
	held bool
}

// Acquire attempts to acquire the advisory lock inside dirPath.
// ctx covers the acquisition attempt, not the background heartbeat.
// It returns (nil, *ErrLockActive) when another live process holds the lock.
func Acquire(ctx context.Context, dirPath, appID string, log *slog.Logger) (*Lock, error) {
	absLockFilePath := filepath.Join(dirPath, LockFileName)

	// Multiple attempts cover the race where a stale lock is being cleaned
	// up by several waiters at once.
	maxAttempts := 3

	for range maxAttempts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lock, err := tryAcquire(absLockFilePath, appID, log)
		if err == nil {
			go lock.heartbeat()
			return lock, nil
		}

		// Anything but "file exists" is a real filesystem error.
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		content, readErr := readLockContent(absLockFilePath)
		if readErr != nil {
			// The holder may be mid-write; wait briefly and retry.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		elapsed := time.Since(content.LastUpdate)
		if elapsed < staleTimeout {
			return nil, &ErrLockActive{
				PID:       content.PID,
				AppID:     content.AppID,
				TimeSince: elapsed,
			}
		}

		log.Warn("Found stale lock, removing", "pid", content.PID, "age", elapsed)
		if removeErr := os.Remove(absLockFilePath); removeErr != nil && !os.IsNotExist(removeErr) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", removeErr)
		}
		// Loop continues to tryAcquire again.
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// tryAcquire attempts atomic creation using O_EXCL to guarantee "I created
// this file first".
func tryAcquire(absLockFilePath, appID string, log *slog.Logger) (*Lock, error) {
	f, err := os.OpenFile(absLockFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	f.Close() // Close immediately; content is written via updateContent.

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:   absLockFilePath,
		appID:  appID,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		held:   true,
	}

	// Write initial data immediately. If this fails we must clean up the
	// empty file we just created.
	if err := l.updateContent(); err != nil {
		l.cleanup()
		return nil, err
	}
	return l, nil
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}

	l.cancel()
	l.cleanup()
	l.held = false
}

func (l *Lock) cleanup() {
	if err := os.Remove(l.path); err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn("Failed to remove lock file", "path", l.path, "error", err)
		}
	} else {
		l.log.Debug("Lock released", "path", l.path)
	}
}

func (l *Lock) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.updateContent(); err != nil {
				l.log.Warn("Heartbeat failed to update lock file", "error", err)
				// Not retried beyond the next tick.
			}
		}
	}
}

func (l *Lock) updateContent() error {
	content := LockContent{
		PID:        int64(os.Getpid()),
		LastUpdate: time.Now().UTC(),
		AppID:      l.appID,
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, data, util.UserWritableFilePerms)
}

// readLockContent reads the lock file, retrying briefly to cover the window
// where the holder is truncating and rewriting it.
func readLockContent(absLockFilePath string) (LockContent, error) {
	var lastErr error

	for range 3 {
		f, err := os.Open(absLockFilePath)
		if err != nil {
			return LockContent{}, err
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		var content LockContent
		if err := json.Unmarshal(data, &content); err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}

	return LockContent{}, fmt.Errorf("failed to read valid lock content: %w", lastErr)
}
