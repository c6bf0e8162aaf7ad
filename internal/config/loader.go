package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/agentlink/internal/engine"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory holding
// agentlink.yaml. When a .checksums manifest sits next to the file, the file
// must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefaults loads configPath, or the discovered config when configPath
// is empty. With nothing to discover it returns validated defaults.
func LoadOrDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		found, err := Discover()
		if errors.Is(err, ErrNoConfig) {
			cfg := applyConfigDefaults(Defaults())
			if err := validate(cfg); err != nil {
				return nil, fmt.Errorf("invalid configuration: %w", err)
			}
			return cfg, nil
		}
		if err != nil {
			return nil, err
		}
		configPath = found
	}
	return Load(configPath)
}

func resolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, FileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", FileName, absPath)
		}
	}
	return absPath, nil
}

// verifyConfigHash checks the file against .checksums in its directory.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, ErrNoChecksums) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: agentlink config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: agentlink config lock --config %s", path, err, path)
	}
	return nil
}

// ApplyShimEnv applies the shim's environment overrides: PORT replaces the
// listen port, NUWAXCODE_PATH the binary, WORKSPACE the working directory.
func ApplyShimEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := parsePort(port); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		host, _, err := net.SplitHostPort(cfg.Shim.Listen)
		if err != nil {
			host = "127.0.0.1"
		}
		cfg.Shim.Listen = net.JoinHostPort(host, port)
	}
	if bin := os.Getenv("NUWAXCODE_PATH"); bin != "" {
		cfg.Shim.Binary = bin
	}
	if ws := os.Getenv("WORKSPACE"); ws != "" {
		cfg.Shim.Workspace = ws
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	d := Defaults()

	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}

	if cfg.Engine.Kind == "" {
		cfg.Engine.Kind = d.Engine.Kind
	}
	if cfg.Engine.Hostname == "" {
		cfg.Engine.Hostname = d.Engine.Hostname
	}
	if cfg.Engine.Port == 0 {
		cfg.Engine.Port = d.Engine.Port
	}
	if cfg.Engine.StartupTimeout == 0 {
		cfg.Engine.StartupTimeout = d.Engine.StartupTimeout
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = d.Engine.PollInterval
	}
	if cfg.Engine.StopGrace == 0 {
		cfg.Engine.StopGrace = d.Engine.StopGrace
	}

	if cfg.Client.ResponseStyle == "" {
		cfg.Client.ResponseStyle = d.Client.ResponseStyle
	}

	if cfg.Shim.Listen == "" {
		cfg.Shim.Listen = d.Shim.Listen
	}
	if cfg.Shim.Binary == "" {
		cfg.Shim.Binary = d.Shim.Binary
	}
	if cfg.Shim.ExecWindow == 0 {
		cfg.Shim.ExecWindow = d.Shim.ExecWindow
	}
	if cfg.Shim.KillGrace == 0 {
		cfg.Shim.KillGrace = d.Shim.KillGrace
	}
	if cfg.Shim.Version == "" {
		cfg.Shim.Version = d.Shim.Version
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with its value. Unset variables are left in
// place and rejected by validate.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate reports the first problem with cfg.
func Validate(cfg *Config) error {
	return validate(cfg)
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if _, err := engine.ParseKind(cfg.Engine.Kind); err != nil {
		return fmt.Errorf("engine.kind: %w", err)
	}
	if cfg.Engine.Port < 1 || cfg.Engine.Port > 65535 {
		return fmt.Errorf("engine.port must be between 1 and 65535 (got %d)", cfg.Engine.Port)
	}
	if cfg.Engine.StartupTimeout < 0 || cfg.Engine.PollInterval < 0 || cfg.Engine.StopGrace < 0 {
		return fmt.Errorf("engine durations must be positive")
	}
	if cfg.Engine.PollInterval > cfg.Engine.StartupTimeout {
		return fmt.Errorf("engine.poll_interval (%v) exceeds engine.startup_timeout (%v)",
			cfg.Engine.PollInterval, cfg.Engine.StartupTimeout)
	}

	switch cfg.Client.ResponseStyle {
	case "raw", "unwrapped":
	default:
		return fmt.Errorf("client.response_style must be raw or unwrapped (got %q)", cfg.Client.ResponseStyle)
	}
	if cfg.Client.BaseURL != "" {
		u, err := url.Parse(cfg.Client.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("client.base_url must be an http(s) URL (got %q)", cfg.Client.BaseURL)
		}
	}
	if cfg.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}

	if _, port, err := net.SplitHostPort(cfg.Shim.Listen); err != nil {
		return fmt.Errorf("shim.listen must be host:port (got %q)", cfg.Shim.Listen)
	} else if _, err := parsePort(port); err != nil {
		return fmt.Errorf("shim.listen: %w", err)
	}
	if cfg.Shim.ExecWindow < 0 || cfg.Shim.KillGrace < 0 {
		return fmt.Errorf("shim durations must be positive")
	}

	for field, value := range map[string]string{
		"engine.opencode_path":  cfg.Engine.OpencodePath,
		"engine.nuwaxcode_path": cfg.Engine.NuwaxcodePath,
		"engine.model":          cfg.Engine.Model,
		"client.base_url":       cfg.Client.BaseURL,
		"service.lock_dir":      cfg.Service.LockDir,
		"shim.binary":           cfg.Shim.Binary,
		"shim.workspace":        cfg.Shim.Workspace,
		"shim.store_path":       cfg.Shim.StorePath,
	} {
		if err := checkUnresolvedEnv(field, value); err != nil {
			return err
		}
	}
	return nil
}

func checkUnresolvedEnv(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
