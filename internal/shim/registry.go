package shim

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mattjoyce/agentlink/internal/metrics"
)

var (
	// ErrBusy is returned when a session already has a running execution.
	ErrBusy = errors.New("session has a running execution")

	// ErrClosed is returned once the registry has been closed.
	ErrClosed = errors.New("registry closed")
)

type execution struct {
	cancel context.CancelFunc
}

// Registry tracks running executions by session id. One Registry belongs to
// one shim instance; Close terminates everything it started.
type Registry struct {
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]*execution
	closed  bool
	wg      sync.WaitGroup
}

func NewRegistry(runner Runner, logger *slog.Logger) *Registry {
	return &Registry{
		runner:  runner,
		logger:  logger,
		running: make(map[string]*execution),
	}
}

// Run executes prompt for sessionID. At most one execution per session runs
// at a time.
func (r *Registry) Run(ctx context.Context, sessionID, prompt string) (Result, error) {
	return r.RunAdmitted(ctx, sessionID, prompt, nil)
}

// RunAdmitted is Run with a hook called once the execution holds the
// session's slot and before the runner starts. A hook error releases the
// slot and is returned as is; the runner is not started.
func (r *Registry) RunAdmitted(ctx context.Context, sessionID, prompt string, admitted func() error) (Result, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Result{}, ErrClosed
	}
	if _, busy := r.running[sessionID]; busy {
		r.mu.Unlock()
		return Result{}, ErrBusy
	}
	ectx, cancel := context.WithCancel(ctx)
	r.running[sessionID] = &execution{cancel: cancel}
	r.wg.Add(1)
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.running, sessionID)
		r.mu.Unlock()
		r.wg.Done()
	}()

	if admitted != nil {
		if err := admitted(); err != nil {
			return Result{}, err
		}
	}

	finish := metrics.ExecutionStarted()
	logger := r.logger.With("session_id", sessionID)
	logger.Debug("execution started", "prompt_bytes", len(prompt))

	res, err := r.runner.Run(ectx, prompt)
	switch {
	case err != nil:
		finish(metrics.OutcomeFailed)
		logger.Error("execution failed to start", "error", err)
		return res, err
	case res.Aborted:
		finish(metrics.OutcomeAborted)
	case res.Truncated:
		finish(metrics.OutcomeTruncated)
	default:
		finish(metrics.OutcomeExited)
	}
	logger.Info("execution finished",
		"exit_code", res.ExitCode,
		"truncated", res.Truncated,
		"aborted", res.Aborted,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Running reports whether sessionID has an execution in flight.
func (r *Registry) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[sessionID]
	return ok
}

// Abort cancels the execution of sessionID. It reports whether one was running.
func (r *Registry) Abort(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.running[sessionID]
	r.mu.Unlock()
	if ok {
		e.cancel()
		r.logger.Info("execution aborted", "session_id", sessionID)
	}
	return ok
}

// Close rejects new executions, cancels the running ones, and waits for them
// to finish. Safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	for _, e := range r.running {
		e.cancel()
	}
	n := len(r.running)
	r.mu.Unlock()

	if n > 0 {
		r.logger.Info("terminating running executions", "count", n)
	}
	r.wg.Wait()
}
