package config

import (
	"time"

	"github.com/mattjoyce/agentlink/internal/engine"
)

// FileName is the config file looked for inside a config directory.
const FileName = "agentlink.yaml"

// Config represents the complete agentlink configuration.
type Config struct {
	Service ServiceConfig `yaml:"service" json:"service"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Client  ClientConfig  `yaml:"client" json:"client"`
	Shim    ShimConfig    `yaml:"shim" json:"shim"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string `yaml:"-" json:"source_path,omitempty"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	// LockDir holds instance lock files. Empty disables locking.
	LockDir string `yaml:"lock_dir,omitempty" json:"lock_dir,omitempty"`
}

// EngineConfig describes the supervised engine.
type EngineConfig struct {
	Kind           string        `yaml:"kind" json:"kind"`
	Hostname       string        `yaml:"hostname" json:"hostname"`
	Port           int           `yaml:"port" json:"port"`
	OpencodePath   string        `yaml:"opencode_path,omitempty" json:"opencode_path,omitempty"`
	NuwaxcodePath  string        `yaml:"nuwaxcode_path,omitempty" json:"nuwaxcode_path,omitempty"`
	Model          string        `yaml:"model,omitempty" json:"model,omitempty"`
	ExtraArgs      []string      `yaml:"extra_args,omitempty" json:"extra_args,omitempty"`
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval"`
	StopGrace      time.Duration `yaml:"stop_grace" json:"stop_grace"`
}

// ClientConfig configures the request dispatcher.
type ClientConfig struct {
	// BaseURL targets an already running engine. Empty derives it from engine.
	BaseURL       string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	ThrowOnError  bool          `yaml:"throw_on_error" json:"throw_on_error"`
	ResponseStyle string        `yaml:"response_style" json:"response_style"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ShimConfig configures the protocol-translation shim.
type ShimConfig struct {
	Listen     string        `yaml:"listen" json:"listen"`
	Binary     string        `yaml:"binary" json:"binary"`
	Workspace  string        `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	ExecWindow time.Duration `yaml:"exec_window" json:"exec_window"`
	KillGrace  time.Duration `yaml:"kill_grace" json:"kill_grace"`
	// StorePath is the SQLite file for sessions. Empty keeps them in memory.
	StorePath string `yaml:"store_path,omitempty" json:"store_path,omitempty"`
	Version   string `yaml:"version" json:"version"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Engine: EngineConfig{
			Kind:           string(engine.KindOpencode),
			Hostname:       engine.DefaultHostname,
			Port:           engine.DefaultPort,
			StartupTimeout: 10 * time.Second,
			PollInterval:   500 * time.Millisecond,
			StopGrace:      5 * time.Second,
		},
		Client: ClientConfig{
			ResponseStyle: "raw",
		},
		Shim: ShimConfig{
			Listen:     "127.0.0.1:4097",
			Binary:     "nuwaxcode",
			ExecWindow: 5 * time.Second,
			KillGrace:  500 * time.Millisecond,
			Version:    "1.0.0",
		},
	}
}

// EngineOptions converts the engine section for engine.NewDescriptor.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Kind:          engine.Kind(c.Engine.Kind),
		Hostname:      c.Engine.Hostname,
		Port:          c.Engine.Port,
		OpencodePath:  c.Engine.OpencodePath,
		NuwaxcodePath: c.Engine.NuwaxcodePath,
		Model:         c.Engine.Model,
		ExtraArgs:     append([]string(nil), c.Engine.ExtraArgs...),
	}
}

// ClientBaseURL is client.base_url, or the engine's address when unset.
func (c *Config) ClientBaseURL() string {
	if c.Client.BaseURL != "" {
		return c.Client.BaseURL
	}
	d, err := engine.NewDescriptor(c.EngineOptions())
	if err != nil {
		return ""
	}
	return d.BaseURL()
}
