package config

import (
	"errors"
	"os"
	"path/filepath"
)

// EnvConfigDir overrides the user config directory.
const EnvConfigDir = "AGENTLINK_CONFIG_DIR"

// ErrNoConfig is returned by Discover when no candidate exists.
var ErrNoConfig = errors.New("no agentlink config found")

// userConfigDir is swapped in tests.
var userConfigDir = os.UserConfigDir

// Candidates lists the config files Discover checks, in order:
// $AGENTLINK_CONFIG_DIR, the user config dir, then the working directory.
func Candidates() []string {
	var out []string
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		out = append(out, filepath.Join(dir, FileName))
	}
	if dir, err := userConfigDir(); err == nil && dir != "" {
		out = append(out, filepath.Join(dir, "agentlink", FileName))
	}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(wd, FileName))
	}
	return out
}

// Discover returns the first existing candidate config file.
func Discover() (string, error) {
	for _, path := range Candidates() {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", ErrNoConfig
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
