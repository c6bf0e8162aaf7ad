package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash() error = %v", err)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if err := VerifyFileHash(path, h1); err != nil {
		t.Errorf("VerifyFileHash() error = %v", err)
	}
	if err := VerifyFileHash(path, strings.Repeat("0", 64)); err == nil {
		t.Error("expected mismatch error")
	}
}

func TestLockThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "engine:\n  port: 4300\n")

	report, err := Lock(path, false)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !report.Written {
		t.Error("report.Written = false")
	}
	info, err := os.Stat(report.ChecksumPath)
	if err != nil {
		t.Fatalf("stat checksums: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("checksums mode = %v, want 0600", info.Mode().Perm())
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("LoadChecksums() error = %v", err)
	}
	if manifest.Hashes[FileName] != report.Hash {
		t.Errorf("manifest hash = %q, want %q", manifest.Hashes[FileName], report.Hash)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock error = %v", err)
	}

	// Tamper.
	writeConfig(t, dir, "engine:\n  port: 4301\n")
	_, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("Load() after edit error = %v, want hash mismatch", err)
	}
}

func TestLockDryRun(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")

	report, err := Lock(path, true)
	if err != nil {
		t.Fatalf("Lock(dryRun) error = %v", err)
	}
	if report.Written {
		t.Error("dry run reported written")
	}
	if _, err := LoadChecksums(dir); !errors.Is(err, ErrNoChecksums) {
		t.Errorf("LoadChecksums() error = %v, want ErrNoChecksums", err)
	}
}

func TestLoadChecksumsRejectsVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(dir); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("LoadChecksums() error = %v, want unsupported version", err)
	}
}

func TestLoadRejectsUnlistedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 1\nhashes:\n  other.yaml: abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "no hash") {
		t.Errorf("Load() error = %v, want missing hash", err)
	}
}
