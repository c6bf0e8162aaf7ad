package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/agentlink/internal/engine"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once, or
	// when another process holds the instance lock for the descriptor.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrStopped is returned by Start when Stop ran before the engine became ready.
	ErrStopped = errors.New("engine stopped during startup")

	// ErrForceKilled reports that the engine ignored SIGTERM and was killed.
	ErrForceKilled = errors.New("engine did not exit after SIGTERM; killed")

	// ErrStopUnconfirmed reports that exit was not observed even after SIGKILL.
	ErrStopUnconfirmed = errors.New("engine exit not confirmed after SIGKILL")
)

// SpawnError reports that the binary could not be launched, or exited
// before it ever answered the liveness probe.
type SpawnError struct {
	Engine engine.Kind
	Binary string
	Stderr string
	Err    error
}

func (e *SpawnError) Error() string {
	msg := fmt.Sprintf("spawn %s (%s): %v", e.Engine, e.Binary, e.Err)
	if e.Stderr != "" {
		msg += "; stderr: " + e.Stderr
	}
	return msg
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StartupTimeoutError reports that the liveness probe never succeeded within
// the startup window. The process has already been terminated.
type StartupTimeoutError struct {
	Engine  engine.Kind
	Binary  string
	URL     string
	Timeout time.Duration
	Stderr  string
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("failed to start %s (%s) within %v: no healthy response from %s%s",
		e.Engine, e.Binary, e.Timeout, e.URL, HealthPath)
	if e.Stderr != "" {
		msg += "; stderr: " + e.Stderr
	}
	return msg
}
