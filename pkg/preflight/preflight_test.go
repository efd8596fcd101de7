package preflight_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/replik-io/replik/pkg/preflight"
)

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Existing Directory", func(t *testing.T) {
		if err := preflight.CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Missing Directory", func(t *testing.T) {
		if err := preflight.CheckSourceAccessible(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected an error for a missing source, got nil")
		}
	})

	t.Run("File Instead Of Directory", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "f.txt")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := preflight.CheckSourceAccessible(file); err == nil {
			t.Error("expected an error for a file source, got nil")
		}
	})
}

func TestCheckReplicaAccessible(t *testing.T) {
	t.Run("Writable Directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := preflight.CheckReplicaAccessible(dir); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		// The write probe must not leave anything behind.
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("expected an empty directory after the probe, found %v", entries)
		}
	})

	t.Run("Missing Directory", func(t *testing.T) {
		if err := preflight.CheckReplicaAccessible(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected an error for a missing replica, got nil")
		}
	})
}

func TestCheckDistinctRoots(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	rep := filepath.Join(base, "rep")
	for _, d := range []string{src, rep} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		src         string
		rep         string
		expectError bool
	}{
		{"Distinct Siblings", src, rep, false},
		{"Identical", src, src, true},
		{"Identical Via Dot", src, filepath.Join(src, "."), true},
		{"Replica Inside Source", src, filepath.Join(src, "nested"), true},
		{"Source Inside Replica", filepath.Join(rep, "nested"), rep, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := preflight.CheckDistinctRoots(tt.src, tt.rep)
			if tt.expectError && err == nil {
				t.Errorf("expected an error for src=%s rep=%s, got nil", tt.src, tt.rep)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestStagingSpace(t *testing.T) {
	replica := t.TempDir()
	if err := os.WriteFile(filepath.Join(replica, "a.bin"), make([]byte, 1000), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(replica, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(replica, "sub", "b.bin"), make([]byte, 500), 0644); err != nil {
		t.Fatal(err)
	}

	required, available, err := preflight.StagingSpace(replica, os.TempDir())
	if err != nil {
		t.Skipf("space query unsupported here: %v", err)
	}
	if required != 1500 {
		t.Errorf("expected required = 1500, got %d", required)
	}
	if available == 0 {
		t.Error("expected a nonzero available byte count")
	}
}
