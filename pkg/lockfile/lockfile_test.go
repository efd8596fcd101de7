package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/replik-io/replik/pkg/plog"
	"github.com/replik-io/replik/pkg/util"
)

func testLogger() *slog.Logger {
	return plog.NewTest(io.Discard)
}

// TestAcquireAndRelease verifies the basic functionality of acquiring and releasing a lock.
func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	expectedLockPath := filepath.Join(dir, LockFileName)

	lock, err := Acquire(context.Background(), dir, "test-app", testLogger())
	if err != nil {
		t.Fatalf("expected to acquire lock, but got error: %v", err)
	}

	if _, err := os.Stat(expectedLockPath); os.IsNotExist(err) {
		t.Fatal("lock file was not created after acquiring lock")
	}

	content, err := readLockContent(expectedLockPath)
	if err != nil {
		t.Fatalf("failed to read lock content: %v", err)
	}
	if content.AppID != "test-app" {
		t.Errorf("expected AppID 'test-app', got %q", content.AppID)
	}
	if content.PID != int64(os.Getpid()) {
		t.Errorf("expected PID %d, got %d", os.Getpid(), content.PID)
	}

	lock.Release()

	if _, err := os.Stat(expectedLockPath); !os.IsNotExist(err) {
		t.Fatal("lock file was not removed after releasing lock")
	}
}

// TestContention ensures that a second acquirer cannot take an active lock.
func TestContention(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir, "app-1", testLogger())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(context.Background(), dir, "app-2", testLogger())
	if err == nil {
		t.Fatal("unexpectedly acquired an active lock")
	}

	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected error of type *ErrLockActive, but got %T: %v", err, err)
	}
	if lockErr.AppID != "app-1" {
		t.Errorf("expected lock error to report AppID 'app-1', got %q", lockErr.AppID)
	}
}

// TestStaleLockCleanup verifies that a stale lock can be taken over.
func TestStaleLockCleanup(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	staleContent := LockContent{
		PID:        12345,
		LastUpdate: time.Now().Add(-(staleTimeout + time.Minute)),
		AppID:      "stale-app",
	}
	data, _ := json.Marshal(staleContent)
	if err := os.WriteFile(lockPath, data, util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to create stale lock file: %v", err)
	}

	lock, err := Acquire(context.Background(), dir, "new-app", testLogger())
	if err != nil {
		t.Fatalf("failed to acquire stale lock: %v", err)
	}
	defer lock.Release()

	content, err := readLockContent(lockPath)
	if err != nil {
		t.Fatalf("failed to read content of newly acquired lock: %v", err)
	}
	if content.AppID != "new-app" {
		t.Errorf("expected new lock to have AppID 'new-app', got %q", content.AppID)
	}
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(context.Background(), dir, "app", testLogger())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	lock.Release()
	lock.Release() // Second release must be a no-op.
}

func TestAcquireCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Acquire(ctx, t.TempDir(), "app", testLogger()); err == nil {
		t.Fatal("expected a context error, got nil")
	}
}

func TestAcquireMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := Acquire(context.Background(), missing, "app", testLogger()); err == nil {
		t.Fatal("expected an error for a missing directory, got nil")
	}
}

// TestHeartbeatUpdatesLock shrinks the heartbeat interval and checks that the
// timestamp in the lock file advances while the lock is held.
func TestHeartbeatUpdatesLock(t *testing.T) {
	origHeartbeat, origStale := heartbeatInterval, staleTimeout
	heartbeatInterval = 20 * time.Millisecond
	staleTimeout = 3 * heartbeatInterval
	defer func() {
		heartbeatInterval, staleTimeout = origHeartbeat, origStale
	}()

	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir, "app", testLogger())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(dir, LockFileName)
	first, err := readLockContent(lockPath)
	if err != nil {
		t.Fatalf("failed to read lock content: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(heartbeatInterval)
		current, err := readLockContent(lockPath)
		if err != nil {
			continue // Mid-rewrite window, try again.
		}
		if current.LastUpdate.After(first.LastUpdate) {
			return
		}
	}
	t.Fatal("heartbeat never advanced the lock timestamp")
}
