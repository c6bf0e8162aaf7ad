package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystemAllowsLocal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shim.db")
	err := checkLocalFilesystem(path, func(string) (string, error) { return "ext4", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystemRejectsNetwork(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shim.db")
	err := checkLocalFilesystem(path, func(string) (string, error) { return "NFS", nil })

	var netErr *NetworkFilesystemError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkFilesystemError, got %v", err)
	}
	if netErr.Path != path || netErr.FSType != "NFS" {
		t.Fatalf("unexpected error fields: %+v", netErr)
	}
	for _, want := range []string{"NFS", "SQLite requires a local filesystem", "shim.store_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err.Error())
		}
	}
}

func TestCheckLocalFilesystemDetectFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shim.db")
	err := checkLocalFilesystem(path, func(string) (string, error) { return "", errors.New("statfs: denied") })
	if err == nil || !strings.Contains(err.Error(), "statfs: denied") {
		t.Fatalf("expected detect error, got %v", err)
	}
}

func TestCheckLocalFilesystemInspectsExistingAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "a", "b", "shim.db")

	var inspected string
	err := checkLocalFilesystem(path, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("inspected %q, want %q", inspected, root)
	}
}

func TestCheckLocalFilesystemSkipsInMemory(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", "  ", ":memory:", "file::memory:?cache=shared"} {
		if !IsInMemory(path) {
			t.Errorf("IsInMemory(%q) = false", path)
		}
		err := checkLocalFilesystem(path, func(string) (string, error) {
			t.Errorf("detect called for in-memory path %q", path)
			return "nfs", nil
		})
		if err != nil {
			t.Errorf("checkLocalFilesystem(%q) = %v", path, err)
		}
	}
	if IsInMemory(filepath.Join(t.TempDir(), "shim.db")) {
		t.Error("file path reported as in-memory")
	}
}
