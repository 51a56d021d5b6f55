package task

// State represents the lifecycle state of a task.
type State int

const (
	// StatePending indicates the task has been created but not started.
	StatePending State = iota
	// StateWaiting indicates the task has started but is blocked on
	// unfinished dependencies.
	StateWaiting
	// StateRunning indicates the task's runner is executing.
	StateRunning
	// StatePaused indicates the task is parked at a checkpoint waiting for
	// Resume or Cancel.
	StatePaused
	// StateSuccess indicates the runner completed normally.
	StateSuccess
	// StateFailed indicates the runner (or a dependency) failed.
	StateFailed
	// StateCancelled indicates the task was cooperatively cancelled.
	StateCancelled
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the three terminal states. A task in
// a terminal state never transitions again.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}

// Active reports whether s counts against a manager's concurrency limit.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// StateChange is broadcast on every state transition.
type StateChange struct {
	Old State
	New State
}
