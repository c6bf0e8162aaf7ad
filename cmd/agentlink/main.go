package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/config"
	"github.com/mattjoyce/agentlink/internal/doctor"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "engine":
		return runEngineNoun(args)
	case "session":
		return runSessionNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "call":
		if hasHelpFlag(args) {
			printCallHelp()
			return 0
		}
		return runCall(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: agentlink version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("agentlink %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`agentlink - Supervise coding-agent engines and call their HTTP API

Usage:
  agentlink <noun> <action> [flags]

Engine Commands:
  engine start      Spawn an engine and supervise it in the foreground
  engine health     Probe GET /global/health on a running engine

Session Commands:
  session list      List sessions
  session get       Show one session
  session create    Create a session
  session prompt    Send a prompt to a session
  session messages  Show a session transcript
  session abort     Abort a running prompt
  session delete    Delete a session

Config Commands:
  config check      Validate syntax and integrity
  config lock       Record the config hash in .checksums
  config show       Print the effective configuration

Other Commands:
  call <operation>  Invoke any engine operation by name
  doctor            Preflight checks for this host
  watch             Live engine and session TUI
  version           Show version information
  help              Show this help message

Use 'agentlink <noun> help' for action-specific flags.
`)
}

func printCallHelp() {
	fmt.Println("Usage: agentlink call <operation> [--url URL] [--param name=value]... [--body JSON|@FILE|-]")
	fmt.Println("       agentlink call --list")
	fmt.Println("Invoke one engine operation and print the JSON response.")
}

func printDoctorHelp() {
	fmt.Println("Usage: agentlink doctor [--config PATH] [--format text|json]")
	fmt.Println("Check engine and shim binaries, ports, workspace and store against this host.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printWatchHelp() {
	fmt.Println("Usage: agentlink watch [--config PATH] [--url URL] [--interval DURATION]")
	fmt.Println()
	fmt.Println("Live view of engine health and sessions.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  r                Refresh now")
	fmt.Println("  ↑/↓, k/j         Navigate sessions")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// loadConfig loads the config and configures logging from it.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(path)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

// newClient builds a client for CLI use. Non-2xx responses are errors so
// they reach the user instead of printing nothing.
func newClient(cfg *config.Config, url string) (*client.Client, error) {
	if url == "" {
		url = cfg.ClientBaseURL()
	}
	opts := []client.Option{
		client.WithThrowOnError(true),
		client.WithResponseStyle(client.ResponseStyle(cfg.Client.ResponseStyle)),
	}
	if cfg.Client.Timeout > 0 {
		opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}))
	}
	return client.New(url, opts...)
}

// printRaw pretty-prints a JSON response. Nothing is printed for nil.
func printRaw(raw json.RawMessage) {
	if raw == nil {
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(out.String())
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	format := fs.String("format", "text", "Output format: text or json")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()
	switch *format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	case "text":
		fmt.Print(doctor.FormatHuman(result))
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s (want text or json)\n", *format)
		return 1
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	url := fs.String("url", "", "Engine base URL (default from config)")
	interval := fs.Duration("interval", watch.DefaultInterval, "Poll interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	c, err := newClient(cfg, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid engine URL: %v\n", err)
		return 1
	}

	if err := watch.Run(c, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
