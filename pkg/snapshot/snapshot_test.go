package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/replik-io/replik/pkg/snapshot"
)

var allFormats = []snapshot.Format{
	snapshot.FormatDir,
	snapshot.FormatTarGz,
	snapshot.FormatTarZst,
}

func writeFile(t *testing.T, root, relPath string, content []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, root, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", relPath, err)
	}
	return string(data)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			replica := t.TempDir()
			writeFile(t, replica, "keep.txt", []byte("original keep"))
			writeFile(t, replica, "sub/nested.txt", []byte("original nested"))

			m := snapshot.NewManager(format, nil, nil)
			staging, files, err := m.Snapshot(replica)
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			defer m.Discard(staging)

			if files != 2 {
				t.Errorf("expected 2 files captured, got %d", files)
			}

			// Simulate a partially applied run: one file overwritten, one
			// deleted, one newly created.
			writeFile(t, replica, "keep.txt", []byte("clobbered"))
			if err := os.Remove(filepath.Join(replica, "sub", "nested.txt")); err != nil {
				t.Fatal(err)
			}
			writeFile(t, replica, "intruder.txt", []byte("new during run"))

			if err := m.Restore(staging, replica); err != nil {
				t.Fatalf("restore failed: %v", err)
			}

			if got := readFile(t, replica, "keep.txt"); got != "original keep" {
				t.Errorf("expected keep.txt restored to original, got %q", got)
			}
			if got := readFile(t, replica, "sub/nested.txt"); got != "original nested" {
				t.Errorf("expected sub/nested.txt recreated, got %q", got)
			}

			// Files created after the snapshot survive a restore. The
			// snapshot only knows what existed when it was taken.
			if _, err := os.Stat(filepath.Join(replica, "intruder.txt")); err != nil {
				t.Errorf("expected intruder.txt to survive restore: %v", err)
			}
		})
	}
}

func TestSnapshotExcludesSystemFiles(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			replica := t.TempDir()
			writeFile(t, replica, "data.txt", []byte("data"))
			writeFile(t, replica, ".~replik.lock", []byte("{}"))

			m := snapshot.NewManager(format, nil, []string{".~replik.lock"})
			staging, files, err := m.Snapshot(replica)
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			defer m.Discard(staging)

			if files != 1 {
				t.Errorf("expected only data.txt captured, got %d files", files)
			}

			// The lock file must not reappear via restore either.
			if err := os.Remove(filepath.Join(replica, ".~replik.lock")); err != nil {
				t.Fatal(err)
			}
			if err := m.Restore(staging, replica); err != nil {
				t.Fatalf("restore failed: %v", err)
			}
			if _, err := os.Stat(filepath.Join(replica, ".~replik.lock")); !os.IsNotExist(err) {
				t.Error("restore resurrected the excluded lock file")
			}
		})
	}
}

func TestSnapshotEmptyReplica(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			m := snapshot.NewManager(format, nil, nil)
			staging, files, err := m.Snapshot(t.TempDir())
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			defer m.Discard(staging)

			if files != 0 {
				t.Errorf("expected 0 files captured, got %d", files)
			}
		})
	}
}

func TestSnapshotMissingReplicaFails(t *testing.T) {
	m := snapshot.NewManager(snapshot.FormatDir, nil, nil)
	staging, _, err := m.Snapshot(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		m.Discard(staging)
		t.Fatal("expected an error for a missing replica root, got nil")
	}
	if staging != "" {
		t.Errorf("expected no staging directory on failure, got %q", staging)
	}
}

func TestDiscard(t *testing.T) {
	t.Run("Removes Staging", func(t *testing.T) {
		replica := t.TempDir()
		writeFile(t, replica, "f.txt", []byte("x"))

		m := snapshot.NewManager(snapshot.FormatDir, nil, nil)
		staging, _, err := m.Snapshot(replica)
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}

		if err := m.Discard(staging); err != nil {
			t.Fatalf("discard failed: %v", err)
		}
		if _, err := os.Stat(staging); !os.IsNotExist(err) {
			t.Error("expected staging directory to be removed")
		}
	})

	t.Run("Empty Path Is A No-Op", func(t *testing.T) {
		m := snapshot.NewManager(snapshot.FormatDir, nil, nil)
		if err := m.Discard(""); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input       string
		expected    snapshot.Format
		expectError bool
	}{
		{"dir", snapshot.FormatDir, false},
		{"tar.gz", snapshot.FormatTarGz, false},
		{"tar.zst", snapshot.FormatTarZst, false},
		{"zip", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := snapshot.ParseFormat(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("ParseFormat(%q) expected error, got %v", tt.input, f)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) unexpected error: %v", tt.input, err)
			}
			if f != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, f, tt.expected)
			}
			if f.String() != tt.input {
				t.Errorf("round trip mismatch: %v.String() = %q", f, f.String())
			}
		})
	}
}
