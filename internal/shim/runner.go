package shim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/agentlink/internal/shim Runner

const (
	// DefaultExecWindow is the upper bound on one execution.
	DefaultExecWindow = 5 * time.Second

	// DefaultKillGrace is the time between SIGTERM and SIGKILL.
	DefaultKillGrace = 500 * time.Millisecond

	// maxCaptureBytes caps each captured stream.
	maxCaptureBytes = 64 * 1024
)

// Result is the outcome of one execution.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool // the window elapsed and the process was terminated
	Aborted   bool // the execution was cancelled
	Duration  time.Duration
}

// Errored reports whether the invocation did not finish cleanly.
func (r Result) Errored() bool {
	return r.ExitCode != 0 || r.Truncated || r.Aborted
}

// Runner executes one prompt against the stdio engine. Cancelling ctx
// terminates the execution and yields a Result with Aborted set.
type Runner interface {
	Run(ctx context.Context, prompt string) (Result, error)
}

// ExecRunner runs "<Binary> exec <prompt>" in Workspace.
type ExecRunner struct {
	Binary    string
	Workspace string
	Window    time.Duration
	Grace     time.Duration
}

// Run starts the binary and waits for exit, the window, or ctx. A start
// failure is returned as an error; everything after that is a Result.
func (r *ExecRunner) Run(ctx context.Context, prompt string) (Result, error) {
	window := r.Window
	if window <= 0 {
		window = DefaultExecWindow
	}
	grace := r.Grace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	stdout := newCappedBuffer(maxCaptureBytes)
	stderr := newCappedBuffer(maxCaptureBytes)

	cmd := exec.Command(r.Binary, "exec", prompt)
	cmd.Dir = r.Workspace
	cmd.Env = os.Environ()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Descendants may inherit the pipes; don't let them hold Wait hostage.
	cmd.WaitDelay = grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", r.Binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(window)
	defer timer.Stop()

	var (
		res     Result
		waitErr error
	)
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.Truncated = true
		waitErr = terminate(cmd, done, grace)
	case <-ctx.Done():
		res.Aborted = true
		waitErr = terminate(cmd, done, grace)
	}

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.ExitCode = exitCode(cmd, waitErr)
	return res, nil
}

// terminate sends SIGTERM to the process group, then SIGKILL after grace,
// and returns the Wait error.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) error {
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
	return <-done
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		if st, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			if st.Signaled() {
				return 128 + int(st.Signal())
			}
			return st.ExitStatus()
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}
