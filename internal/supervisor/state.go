// Package supervisor owns the lifecycle of a single engine process: spawn,
// readiness polling, and teardown.
package supervisor

// State represents where a supervised engine is in its lifecycle.
type State int

const (
	// StateNotStarted is the initial state before Start is called.
	StateNotStarted State = iota

	// StateStarting indicates the process was spawned and is being probed.
	StateStarting

	// StateReady indicates the liveness probe succeeded.
	StateReady

	// StateFailed indicates the start attempt failed. Terminal.
	StateFailed

	// StateStopped indicates the process was torn down. Terminal.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateFailed || s == StateStopped
}

// canTransition enforces monotonic progress: never back to starting,
// and nothing leaves a terminal state.
func canTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		return to == StateStarting || to == StateStopped
	case StateStarting:
		return to == StateReady || to == StateFailed || to == StateStopped
	case StateReady:
		return to == StateStopped
	default:
		return false
	}
}
