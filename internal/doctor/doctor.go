// Package doctor runs preflight checks against an agentlink configuration.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattjoyce/agentlink/internal/config"
	"github.com/mattjoyce/agentlink/internal/engine"
	"github.com/mattjoyce/agentlink/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks that a config can actually run on this host.
type Doctor struct {
	cfg *config.Config

	lookPath func(string) (string, error)
	listen   func(network, addr string) (net.Listener, error)
	checkFS  func(string) error
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		listen:   net.Listen,
		checkFS:  storage.CheckLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.checkEngine(r)
	d.checkShim(r)
	d.checkLockDir(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkEngine resolves the engine binary and probes its port.
func (d *Doctor) checkEngine(r *Result) {
	desc, err := engine.NewDescriptor(d.cfg.EngineOptions())
	if err != nil {
		d.addError(r, "engine", "engine.kind", err.Error())
		return
	}

	field := "engine.opencode_path"
	if desc.Kind == engine.KindNuwaxcode {
		field = "engine.nuwaxcode_path"
	}
	if _, err := d.lookPath(desc.Binary); err != nil {
		d.addError(r, "engine", field,
			fmt.Sprintf("engine binary %q not found: %v", desc.Binary, err))
	}

	addr := net.JoinHostPort(desc.Hostname, strconv.Itoa(desc.Port))
	if err := d.portFree(addr); err != nil {
		d.addWarning(r, "engine", "engine.port",
			fmt.Sprintf("%s is in use (an engine may already be running): %v", addr, err))
	}
}

// checkShim covers the exec binary, workspace and session store.
func (d *Doctor) checkShim(r *Result) {
	shim := d.cfg.Shim

	if _, err := d.lookPath(shim.Binary); err != nil {
		d.addWarning(r, "shim", "shim.binary",
			fmt.Sprintf("shim binary %q not found; agentlink-shim prompts will fail", shim.Binary))
	}

	if shim.Workspace != "" {
		info, err := os.Stat(shim.Workspace)
		switch {
		case err != nil:
			d.addError(r, "shim", "shim.workspace",
				fmt.Sprintf("workspace %q does not exist", shim.Workspace))
		case !info.IsDir():
			d.addError(r, "shim", "shim.workspace",
				fmt.Sprintf("workspace %q is not a directory", shim.Workspace))
		}
	}

	if err := d.checkFS(shim.StorePath); err != nil {
		d.addError(r, "shim", "shim.store_path", err.Error())
	}

	if err := d.portFree(shim.Listen); err != nil {
		d.addWarning(r, "shim", "shim.listen",
			fmt.Sprintf("%s is in use: %v", shim.Listen, err))
	}
}

func (d *Doctor) checkLockDir(r *Result) {
	dir := d.cfg.Service.LockDir
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		// Created on first start.
		return
	}
	if err != nil {
		d.addError(r, "service", "service.lock_dir", err.Error())
		return
	}
	if !info.IsDir() {
		d.addError(r, "service", "service.lock_dir",
			fmt.Sprintf("lock_dir %q is not a directory", dir))
	}
}

func (d *Doctor) portFree(addr string) error {
	ln, err := d.listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("All checks passed.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Checks passed (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Checks failed (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
