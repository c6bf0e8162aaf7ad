package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/agentlink/internal/engine"
	"github.com/mattjoyce/agentlink/internal/lock"
	"github.com/mattjoyce/agentlink/internal/log"
	"github.com/mattjoyce/agentlink/internal/metrics"
)

const (
	// HealthPath is the liveness probe every engine answers once ready.
	HealthPath = "/global/health"

	DefaultStartupTimeout = 10 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond

	// DefaultStopGrace is the time we wait after SIGTERM before sending SIGKILL.
	DefaultStopGrace = 5 * time.Second

	// killWait bounds how long we wait for exit after SIGKILL.
	killWait = 2 * time.Second
)

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called once the engine process has been spawned.
	OnStart func(pid int)

	// OnExit is called when the engine process exits.
	OnExit func(exitCode int)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Descriptor     engine.Descriptor
	StartupTimeout time.Duration
	PollInterval   time.Duration
	StopGrace      time.Duration

	// LockDir, when set, holds one flock'ed PID file per descriptor so that
	// two supervisors never run the same endpoint at once.
	LockDir string

	// HTTPClient sends liveness probes. Defaults to a fresh client.
	HTTPClient *http.Client

	Logger    *slog.Logger
	Callbacks Callbacks
}

// Server is the reachable endpoint handed back by a successful Start.
type Server struct {
	URL string
	PID int

	sup *Supervisor
}

// Close stops the engine. See Supervisor.Stop.
func (s *Server) Close() error {
	return s.sup.Stop()
}

// Exited is closed when the engine process exits for any reason.
func (s *Server) Exited() <-chan struct{} {
	return s.sup.exited
}

// Supervisor manages one engine process from spawn to teardown.
type Supervisor struct {
	desc      engine.Descriptor
	timeout   time.Duration
	interval  time.Duration
	grace     time.Duration
	lockDir   string
	http      *http.Client
	logger    *slog.Logger
	callbacks Callbacks

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	lock   *lock.InstanceLock
	detach func() bool

	// exited is closed by the wait goroutine; exitErr is valid afterwards.
	exited  chan struct{}
	exitErr error

	// stopping is closed when teardown begins.
	stopping     chan struct{}
	teardownOnce sync.Once
	teardownErr  error
	stopCalled   bool

	stderr     *tailBuffer
	stderrDone chan struct{}
}

// New creates a Supervisor. It performs no I/O.
func New(cfg Config) *Supervisor {
	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = DefaultStartupTimeout
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("supervisor")
	}
	desc := cfg.Descriptor.Clone()

	return &Supervisor{
		desc:      desc,
		timeout:   timeout,
		interval:  interval,
		grace:     grace,
		lockDir:   cfg.LockDir,
		http:      hc,
		logger:    logger.With("engine", string(desc.Kind)),
		callbacks: cfg.Callbacks,
		state:     StateNotStarted,
		exited:    make(chan struct{}),
		stopping:  make(chan struct{}),
		stderr:    newTailBuffer(maxStderrBytes),

		stderrDone: make(chan struct{}),
	}
}

// Descriptor returns a copy of the supervised descriptor.
func (s *Supervisor) Descriptor() engine.Descriptor {
	return s.desc.Clone()
}

// URL is the base URL the engine is expected to listen on.
func (s *Supervisor) URL() string {
	return s.desc.BaseURL()
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stderr returns the most recent stderr output of the engine.
func (s *Supervisor) Stderr() string {
	return s.stderr.String()
}

// setStateLocked applies a transition if it is allowed. Caller holds s.mu.
// The callback is returned so it can run without the lock.
func (s *Supervisor) setStateLocked(newState State) func() {
	oldState := s.state
	if !canTransition(oldState, newState) {
		return func() {}
	}
	s.state = newState
	s.logger.Debug("state changed", "from", oldState.String(), "to", newState.String())
	if cb := s.callbacks.OnStateChange; cb != nil {
		return func() { cb(oldState, newState) }
	}
	return func() {}
}

func (s *Supervisor) setState(newState State) {
	s.mu.Lock()
	notify := s.setStateLocked(newState)
	s.mu.Unlock()
	notify()
}

// Start spawns the engine and blocks until it answers the liveness probe,
// the startup timeout elapses, or ctx is cancelled. Cancelling ctx at any
// point, including after Start returned, stops the engine exactly once.
func (s *Supervisor) Start(ctx context.Context) (*Server, error) {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted:
	case StateStopped:
		s.mu.Unlock()
		return nil, ErrStopped
	default:
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	notify := s.setStateLocked(StateStarting)
	s.detach = context.AfterFunc(ctx, func() { _ = s.Stop() })
	s.mu.Unlock()
	notify()

	kind := string(s.desc.Kind)
	started := time.Now()

	binary, err := s.desc.ResolveBinary()
	if err != nil {
		return nil, s.failStart(kind, metrics.OutcomeSpawn, &SpawnError{Engine: s.desc.Kind, Binary: s.desc.Binary, Err: err})
	}

	if s.lockDir != "" {
		l, err := lock.Acquire(lock.PathFor(s.lockDir, s.desc.Fingerprint()))
		if err != nil {
			return nil, s.failStart(kind, metrics.OutcomeSpawn, fmt.Errorf("%w: %w", ErrAlreadyStarted, err))
		}
		s.mu.Lock()
		if s.state != StateStarting {
			s.mu.Unlock()
			_ = l.Release()
			metrics.RecordEngineStart(kind, metrics.OutcomeCancelled, 0)
			return nil, s.startAbortedErr(ctx)
		}
		s.lock = l
		s.mu.Unlock()
	}

	s.logger.Info("starting engine", "binary", binary, "url", s.URL(), "args", s.desc.Args())

	pid, err := s.spawn(binary)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			metrics.RecordEngineStart(kind, metrics.OutcomeCancelled, 0)
			return nil, s.startAbortedErr(ctx)
		}
		return nil, s.failStart(kind, metrics.OutcomeSpawn, &SpawnError{Engine: s.desc.Kind, Binary: binary, Err: err})
	}

	if err := s.waitReady(ctx, started); err != nil {
		var timeoutErr *StartupTimeoutError
		var spawnErr *SpawnError
		switch {
		case errors.As(err, &timeoutErr):
			timeoutErr.Binary = binary
			return nil, s.failStart(kind, metrics.OutcomeTimeout, timeoutErr)
		case errors.As(err, &spawnErr):
			spawnErr.Binary = binary
			return nil, s.failStart(kind, metrics.OutcomeSpawn, spawnErr)
		default:
			metrics.RecordEngineStart(kind, metrics.OutcomeCancelled, 0)
			_ = s.Stop()
			return nil, err
		}
	}

	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		metrics.RecordEngineStart(kind, metrics.OutcomeCancelled, 0)
		return nil, s.startAbortedErr(ctx)
	}
	notify = s.setStateLocked(StateReady)
	s.mu.Unlock()
	notify()

	metrics.RecordEngineStart(kind, metrics.OutcomeReady, time.Since(started))
	s.logger.Info("engine ready", "url", s.URL(), "pid", pid, "startup", time.Since(started).String())

	return &Server{URL: s.URL(), PID: pid, sup: s}, nil
}

func (s *Supervisor) startAbortedErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}
	return ErrStopped
}

// failStart marks the attempt failed, tears the process down, and returns err.
func (s *Supervisor) failStart(kind, outcome string, err error) error {
	s.setState(StateFailed)
	if terr := s.teardown(); terr != nil {
		s.logger.Warn("teardown after failed start", "error", terr)
	}
	metrics.RecordEngineStart(kind, outcome, 0)
	s.logger.Error("engine failed to start", "error", err)
	return err
}

// spawn launches the binary. It refuses to launch once teardown has begun so
// a cancellation racing with Start never leaks a process.
func (s *Supervisor) spawn(binary string) (int, error) {
	cmd := exec.Command(binary, s.desc.Args()...)
	cmd.Env = os.Environ()
	cmd.Stdin = nil // null device
	setProcessGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return 0, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	closeAll := func() {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			_ = f.Close()
		}
	}

	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		closeAll()
		return 0, ErrStopped
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		closeAll()
		return 0, err
	}
	s.cmd = cmd
	s.mu.Unlock()

	// The child holds its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()

	go func() {
		defer stdoutR.Close()
		pumpLines(stdoutR, s.logger, slog.LevelDebug, "stdout", nil)
	}()
	go func() {
		defer close(s.stderrDone)
		defer stderrR.Close()
		pumpLines(stderrR, s.logger, slog.LevelWarn, "stderr", s.stderr)
	}()

	pid := cmd.Process.Pid
	kind := string(s.desc.Kind)
	metrics.EngineRunning(kind, 1)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(pid)
	}

	go func() {
		err := cmd.Wait()
		s.exitErr = err
		close(s.exited)

		metrics.EngineRunning(kind, -1)
		code := extractExitCode(err)
		s.logger.Info("engine exited", "pid", pid, "exit_code", code)
		if s.callbacks.OnExit != nil {
			s.callbacks.OnExit(code)
		}
	}()

	return pid, nil
}

// waitReady polls the liveness probe until success or the deadline.
func (s *Supervisor) waitReady(ctx context.Context, started time.Time) error {
	deadline := started.Add(s.timeout)
	url := s.URL() + HealthPath
	kind := string(s.desc.Kind)

	for attempt := 1; ; attempt++ {
		if !time.Now().Before(deadline) {
			return &StartupTimeoutError{
				Engine:  s.desc.Kind,
				Binary:  s.desc.Binary,
				URL:     s.URL(),
				Timeout: s.timeout,
				Stderr:  s.stderr.String(),
			}
		}

		metrics.RecordProbeAttempt(kind)
		err := s.probe(ctx, url, deadline)
		if err == nil {
			return nil
		}
		s.logger.Debug("liveness probe failed", "attempt", attempt, "error", err)

		wait := min(s.interval, time.Until(deadline))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.startAbortedErr(ctx)
		case <-s.stopping:
			timer.Stop()
			return s.startAbortedErr(ctx)
		case <-s.exited:
			timer.Stop()
			s.drainStderr()
			return &SpawnError{
				Engine: s.desc.Kind,
				Binary: s.desc.Binary,
				Stderr: s.stderr.String(),
				Err:    fmt.Errorf("exited before becoming ready (exit code %d)", extractExitCode(s.exitErr)),
			}
		case <-timer.C:
		}
	}
}

// drainStderr gives the stderr pump a moment to catch the last lines of a
// process that already exited. Descendants may keep the pipe open.
func (s *Supervisor) drainStderr() {
	t := time.NewTimer(250 * time.Millisecond)
	defer t.Stop()
	select {
	case <-s.stderrDone:
	case <-t.C:
	}
}

// probe issues one GET against the health endpoint, bounded by deadline.
func (s *Supervisor) probe(ctx context.Context, url string, deadline time.Time) error {
	pctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// Stop terminates the engine if it is alive and marks the supervisor
// stopped. It is idempotent: only the first call does any work and reports
// a teardown problem; later calls return nil. Stop never panics and is
// safe before Start, during startup, and after the engine exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	first := !s.stopCalled
	s.stopCalled = true
	notify := s.setStateLocked(StateStopped)
	s.mu.Unlock()
	notify()

	err := s.teardown()
	if !first {
		return nil
	}
	return err
}

// teardown signals the process group and waits for exit acknowledgment,
// escalating to SIGKILL after the grace period. It runs once.
func (s *Supervisor) teardown() error {
	s.teardownOnce.Do(func() {
		close(s.stopping)

		s.mu.Lock()
		cmd := s.cmd
		detach := s.detach
		held := s.lock
		s.lock = nil
		s.mu.Unlock()

		if detach != nil {
			detach()
		}
		defer func() {
			if err := held.Release(); err != nil {
				s.logger.Warn("release instance lock", "error", err)
			}
		}()

		if cmd == nil || cmd.Process == nil {
			return
		}
		s.teardownErr = s.terminate(cmd)
	})
	return s.teardownErr
}

func (s *Supervisor) terminate(cmd *exec.Cmd) error {
	select {
	case <-s.exited:
		return nil
	default:
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping engine", "pid", pid)
	signalGroup(cmd.Process, syscall.SIGTERM)

	grace := time.NewTimer(s.grace)
	defer grace.Stop()
	select {
	case <-s.exited:
		return nil
	case <-grace.C:
	}

	s.logger.Warn("engine did not exit after SIGTERM, sending SIGKILL", "pid", pid)
	signalGroup(cmd.Process, syscall.SIGKILL)

	kill := time.NewTimer(killWait)
	defer kill.Stop()
	select {
	case <-s.exited:
		return ErrForceKilled
	case <-kill.C:
		return fmt.Errorf("%w: pid %d", ErrStopUnconfirmed, pid)
	}
}

// signalGroup delivers sig to the engine's process group, falling back to the
// process itself. Delivery errors are ignored: the process is going away.
func signalGroup(p *os.Process, sig syscall.Signal) {
	if pgid, err := syscall.Getpgid(p.Pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = p.Signal(sig)
}

// setProcessGroup puts the child in its own process group for clean shutdown.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
