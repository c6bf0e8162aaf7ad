package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// remoteFilesystems are filesystem names on which SQLite locking is unreliable.
var remoteFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// NetworkFilesystemError reports a store path that resolves to a network mount.
type NetworkFilesystemError struct {
	Path   string
	FSType string
}

func (e *NetworkFilesystemError) Error() string {
	return fmt.Sprintf(
		"store path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set shim.store_path (or --store) to a local file, or leave it empty for an in-memory store",
		e.Path, e.FSType,
	)
}

// IsInMemory reports whether path names an in-memory database rather than a file.
func IsInMemory(path string) bool {
	p := strings.TrimSpace(path)
	return p == "" || p == ":memory:" || strings.HasPrefix(p, "file::memory:")
}

// CheckLocalFilesystem reports an error when path (or its nearest existing
// ancestor) lives on a network filesystem. In-memory paths always pass.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, filesystemType)
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	if IsInMemory(path) {
		return nil
	}

	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve store path %q: %w", path, err)
	}
	fsType, err := detect(dir)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	if _, remote := remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; remote {
		return &NetworkFilesystemError{Path: path, FSType: fsType}
	}
	return nil
}

// existingAncestor returns path itself when it exists, otherwise the closest
// parent directory that does. The store file and its directory may not have
// been created yet.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(dir)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent")
		}
		dir = parent
	}
}
