// Command agentlink-shim serves the engine HTTP session API on top of a
// binary that only supports one-shot "exec <prompt>" runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/agentlink/internal/config"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/shim"
	"github.com/mattjoyce/agentlink/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("agentlink-shim", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file or directory")
	listen := fs.String("listen", "", "Listen address (default shim.listen, or $PORT)")
	binary := fs.String("binary", "", "Binary run as '<binary> exec <prompt>' (or $NUWAXCODE_PATH)")
	workspace := fs.String("workspace", "", "Working directory for runs (or $WORKSPACE)")
	window := fs.Duration("window", 0, "How long a run may take before it is cut off")
	store := fs.String("store", "", "SQLite file for sessions (default in memory)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// Precedence: flags, then environment, then config file.
	if err := config.ApplyShimEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Shim.Listen = *listen
	}
	if *binary != "" {
		cfg.Shim.Binary = *binary
	}
	if *workspace != "" {
		cfg.Shim.Workspace = *workspace
	}
	if *window > 0 {
		cfg.Shim.ExecWindow = *window
	}
	if *store != "" {
		cfg.Shim.StorePath = *store
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("shim")

	if _, err := exec.LookPath(cfg.Shim.Binary); err != nil {
		logger.Warn("shim binary not found; prompts will fail", "binary", cfg.Shim.Binary, "error", err)
	}

	db, err := storage.OpenSQLite(ctx, cfg.Shim.StorePath)
	if err != nil {
		logger.Error("failed to open session store", "path", cfg.Shim.StorePath, "error", err)
		return 1
	}
	defer db.Close()

	runner := &shim.ExecRunner{
		Binary:    cfg.Shim.Binary,
		Workspace: cfg.Shim.Workspace,
		Window:    cfg.Shim.ExecWindow,
		Grace:     cfg.Shim.KillGrace,
	}
	registry := shim.NewRegistry(runner, logger.With("subcomponent", "registry"))
	server := shim.New(shim.Config{
		Listen:  cfg.Shim.Listen,
		Version: cfg.Shim.Version,
	}, storage.NewSessionStore(db), registry, logger)

	logger.Info("agentlink-shim running (press Ctrl+C to stop)",
		"listen", cfg.Shim.Listen,
		"binary", cfg.Shim.Binary,
		"workspace", cfg.Shim.Workspace,
		"window", cfg.Shim.ExecWindow,
		"store", cfg.Shim.StorePath,
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shim server failed", "error", err)
		return 1
	}
	logger.Info("agentlink-shim stopped")
	return 0
}
