package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/agentlink/internal/client"
	"github.com/mattjoyce/agentlink/internal/connector"
	"github.com/mattjoyce/agentlink/internal/engine"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/protocol"
)

func runEngineNoun(args []string) int {
	if len(args) < 1 {
		printEngineNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printEngineNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printEngineStartHelp()
			return 0
		}
		return runEngineStart(actionArgs)
	case "health":
		if hasHelpFlag(actionArgs) {
			printEngineHealthHelp()
			return 0
		}
		return runEngineHealth(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown engine action: %s\n", action)
		printEngineNounHelp(os.Stderr)
		return 1
	}
}

func printEngineNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: agentlink engine <action> [flags]")
	fmt.Fprintln(w, "Actions: start, health")
}

func printEngineStartHelp() {
	fmt.Println("Usage: agentlink engine start [--config PATH] [--kind opencode|nuwaxcode] [--hostname HOST]")
	fmt.Println("                              [--port N] [--model NAME] [--timeout DURATION] [--smoke]")
	fmt.Println("Spawn '<engine> serve --port N', wait for GET /global/health, print the URL and")
	fmt.Println("supervise the engine until SIGINT/SIGTERM. With --smoke the engine is stopped")
	fmt.Println("as soon as it is ready.")
}

func printEngineHealthHelp() {
	fmt.Println("Usage: agentlink engine health [--config PATH] [--url URL]")
	fmt.Println("Probe a running engine. Exits 1 when it is unreachable or unhealthy.")
}

func runEngineStart(args []string) int {
	fs := flag.NewFlagSet("engine start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	kind := fs.String("kind", "", "Engine kind: opencode or nuwaxcode")
	hostname := fs.String("hostname", "", "Engine hostname")
	port := fs.Int("port", 0, "Engine port")
	model := fs.String("model", "", "Model passed as --model")
	timeout := fs.Duration("timeout", 0, "Startup timeout")
	smoke := fs.Bool("smoke", false, "Stop the engine as soon as it is ready")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	opts := cfg.EngineOptions()
	if *kind != "" {
		opts.Kind = engine.Kind(*kind)
	}
	if *hostname != "" {
		opts.Hostname = *hostname
	}
	if *port != 0 {
		opts.Port = *port
	}
	if *model != "" {
		opts.Model = *model
	}
	startup := cfg.Engine.StartupTimeout
	if *timeout > 0 {
		startup = *timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.WithComponent("cli")
	conn, err := connector.Start(ctx, connector.Options{
		Engine:         opts,
		StartupTimeout: startup,
		PollInterval:   cfg.Engine.PollInterval,
		StopGrace:      cfg.Engine.StopGrace,
		LockDir:        cfg.Service.LockDir,
		ThrowOnError:   true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start engine: %v\n", err)
		return 1
	}

	fmt.Println(conn.Server.URL)
	if *smoke {
		return closeEngine(conn)
	}

	logger.Info("engine supervised (press Ctrl+C to stop)", "url", conn.Server.URL, "pid", conn.Server.PID)
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-conn.Server.Exited():
		logger.Error("engine exited unexpectedly", "stderr", conn.Supervisor().Stderr())
		_ = conn.Close()
		return 1
	}
	return closeEngine(conn)
}

func closeEngine(conn *connector.Connection) int {
	if err := conn.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Engine stop: %v\n", err)
		return 1
	}
	return 0
}

func runEngineHealth(args []string) int {
	fs := flag.NewFlagSet("engine health", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	url := fs.String("url", "", "Engine base URL (default from config)")
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := c.Global.Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engine unreachable at %s: %v\n", c.BaseURL(), err)
		return 1
	}
	health, err := client.Decode[protocol.HealthResponse](raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unexpected health response: %v\n", err)
		return 1
	}
	printRaw(raw)
	if !health.Healthy {
		return 1
	}
	return 0
}
