// Package task implements a controllable handle around an asynchronous unit
// of work: a seven-state lifecycle machine whose transitions are driven both
// by external control calls (Pause, Resume, Cancel) and by the runner's own
// cooperative checkpoints.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	taskerrors "github.com/taskweave/taskweave/internal/errors"
	"github.com/taskweave/taskweave/internal/logger"
	"github.com/taskweave/taskweave/internal/notify"
)

// Runner is the body of a task. It receives a restricted control surface and
// produces the task's result. Runners report progress and yield to pending
// pause/cancel requests by calling Checkpoint; a runner that never
// checkpoints cannot be paused or cancelled mid-execution.
type Runner func(ctx context.Context, tc Controls) (interface{}, error)

type eventKind int

const (
	eventState eventKind = iota
	eventProgress
)

type event struct {
	kind     eventKind
	change   StateChange
	progress float64
}

// Task is a controllable handle around a Runner. Identity is object
// identity: two tasks are the same task only if they are the same pointer.
// All methods are safe for concurrent use.
type Task struct {
	id     string
	runner Runner

	mu           sync.Mutex
	state        State
	progress     float64
	shouldPause  bool
	shouldCancel bool
	// waiter is the parked checkpoint continuation. Non-nil iff state is
	// StatePaused.
	waiter     chan error
	result     interface{}
	err        error
	deps       []*Task
	owner      interface{}
	startedAt  time.Time
	finishedAt time.Time

	// queue and dispatching serialize listener notification so broadcasts
	// are delivered in transition order even when listeners synchronously
	// trigger further transitions.
	queue       []event
	dispatching bool

	done chan struct{}

	stateHub    notify.Hub[StateChange]
	progressHub notify.Hub[float64]
}

// New creates a Pending task with the given id and runner. An empty id is
// replaced with a generated UUID.
func New(id string, runner Runner) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	return &Task{
		id:     id,
		runner: runner,
		state:  StatePending,
		done:   make(chan struct{}),
	}
}

// ID returns the task's identifier.
func (t *Task) ID() string {
	return t.id
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Is reports whether the task is currently in state s.
func (t *Task) Is(s State) bool {
	return t.State() == s
}

// IsFinished reports whether the task has reached a terminal state.
func (t *Task) IsFinished() bool {
	return t.State().Terminal()
}

// Progress returns the last reported progress in [0, 1].
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Result returns the runner's result. It is only meaningful after the task
// reached StateSuccess.
func (t *Task) Result() interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Err returns the terminal error. It is non-nil only after StateFailed or
// StateCancelled; for a cancelled task it always carries the cancellation
// error.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// IsPauseRequested reports whether a pause request is pending.
func (t *Task) IsPauseRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldPause
}

// IsCancelRequested reports whether a cancel request is pending.
func (t *Task) IsCancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldCancel
}

// StartedAt returns when Run was called, or the zero time before that.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// Duration returns how long the task ran, or 0 before it finished.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// Done returns a channel that is closed once the task reaches a terminal
// state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes (or ctx is done) and returns its
// result and terminal error. It is the way to observe the outcome of a task
// started by another goroutine, typically a manager.
func (t *Task) Wait(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnStateChange registers a listener for state transitions. The listener may
// remove its own subscription from within the callback.
func (t *Task) OnStateChange(fn func(StateChange)) *notify.Subscription[StateChange] {
	return t.stateHub.Subscribe(fn)
}

// OnProgress registers a listener for progress changes.
func (t *Task) OnProgress(fn func(float64)) *notify.Subscription[float64] {
	return t.progressHub.Subscribe(fn)
}

// Claim marks the task as owned by the given manager. Claiming an unowned
// task or re-claiming by the same owner succeeds; a task owned by a
// different manager is rejected.
func (t *Task) Claim(owner interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owner != nil && t.owner != owner {
		return taskerrors.New(taskerrors.CategoryInvalidAction,
			"task already owned by another manager", "submit").
			WithContext("task", t.id)
	}
	t.owner = owner
	return nil
}

// SetProgress updates the reported progress. Values outside [0, 1] raise a
// validation error and leave progress unchanged. Monotonicity is not
// enforced.
func (t *Task) SetProgress(progress float64) error {
	t.mu.Lock()
	if progress < 0 || progress > 1 {
		t.mu.Unlock()
		return taskerrors.NewValidationError(
			fmt.Sprintf("progress %v out of range [0, 1]", progress), "set progress").
			WithContext("task", t.id)
	}
	if progress != t.progress {
		t.progress = progress
		t.queue = append(t.queue, event{kind: eventProgress, progress: progress})
	}
	t.mu.Unlock()
	t.dispatch()
	return nil
}

// Pause requests a cooperative pause. Valid only while Running or Paused;
// the pause takes effect at the runner's next checkpoint.
func (t *Task) Pause() error {
	t.mu.Lock()
	if t.state != StateRunning && t.state != StatePaused {
		st := t.state
		t.mu.Unlock()
		return taskerrors.NewInvalidActionError("pause", st.String()).WithContext("task", t.id)
	}
	t.shouldPause = true
	t.mu.Unlock()
	return nil
}

// Resume clears a pending pause request. If the task is currently parked at
// a checkpoint it is woken and transitions back to Running.
func (t *Task) Resume() error {
	t.mu.Lock()
	if t.state != StateRunning && t.state != StatePaused {
		st := t.state
		t.mu.Unlock()
		return taskerrors.NewInvalidActionError("resume", st.String()).WithContext("task", t.id)
	}
	t.shouldPause = false
	if t.state == StatePaused {
		if t.waiter == nil {
			t.mu.Unlock()
			return taskerrors.NewInternalError("paused task has no parked checkpoint").
				WithContext("task", t.id)
		}
		wake := t.waiter
		t.waiter = nil
		t.setStateLocked(StateRunning)
		t.mu.Unlock()
		wake <- nil
		t.dispatch()
		return nil
	}
	t.mu.Unlock()
	return nil
}

// Cancel requests cooperative cancellation. Valid while Running, Paused or
// already Cancelled (idempotent at the terminal state). If the task is
// parked at a checkpoint, the parked continuation is rejected immediately,
// so cancelling a paused task does not require a Resume first.
func (t *Task) Cancel() error {
	t.mu.Lock()
	switch t.state {
	case StateRunning, StatePaused, StateCancelled:
	default:
		st := t.state
		t.mu.Unlock()
		return taskerrors.NewInvalidActionError("cancel", st.String()).WithContext("task", t.id)
	}
	t.shouldCancel = true
	if t.state == StatePaused && t.waiter != nil {
		wake := t.waiter
		t.waiter = nil
		err := taskerrors.NewCancelledError(t.id)
		t.err = err
		t.setStateLocked(StateCancelled)
		t.mu.Unlock()
		wake <- err
		t.dispatch()
		return nil
	}
	t.mu.Unlock()
	return nil
}

// Run executes the task to completion: waits for dependencies, performs the
// initial checkpoint, invokes the runner, and classifies the outcome. It is
// only valid from StatePending and must be called at most once; the result
// or terminal error is returned (and also available via Wait/Result/Err).
//
// Cancelling ctx maps onto the cooperative Cancel call, so as with any
// cancellation the effect is deferred to the runner's next checkpoint.
func (t *Task) Run(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.state != StatePending {
		st := t.state
		t.mu.Unlock()
		return nil, taskerrors.NewInvalidActionError("run", st.String()).WithContext("task", t.id)
	}
	t.startedAt = time.Now()
	deps := make([]*Task, len(t.deps))
	copy(deps, t.deps)
	if len(deps) > 0 {
		t.setStateLocked(StateWaiting)
	} else {
		t.setStateLocked(StateRunning)
	}
	t.mu.Unlock()
	t.dispatch()

	logger.Op.WithField("task", t.id).Debug("Task started")

	if len(deps) > 0 {
		if err := t.awaitDependencies(ctx, deps); err != nil {
			return nil, t.finish(nil, err)
		}
		t.mu.Lock()
		t.setStateLocked(StateRunning)
		t.mu.Unlock()
		t.dispatch()
	}

	stop := t.watchContext(ctx)
	defer stop()

	// The initial checkpoint establishes Running cleanly and gives a
	// pause/cancel issued before any user code a chance to act first.
	if err := t.checkpoint(0, true); err != nil {
		return nil, t.finish(nil, err)
	}

	result, err := t.runner(ctx, controls{t: t})
	if err != nil {
		return nil, t.finish(nil, err)
	}
	if ferr := t.finish(result, nil); ferr != nil {
		return nil, ferr
	}
	return result, nil
}

// checkpoint implements the cooperative suspension protocol. Only valid
// while Running.
func (t *Task) checkpoint(progress float64, withProgress bool) error {
	t.mu.Lock()
	if t.state != StateRunning {
		st := t.state
		t.mu.Unlock()
		return taskerrors.NewInvalidActionError("checkpoint", st.String()).WithContext("task", t.id)
	}
	if withProgress {
		if progress < 0 || progress > 1 {
			t.mu.Unlock()
			return taskerrors.NewValidationError(
				fmt.Sprintf("progress %v out of range [0, 1]", progress), "checkpoint").
				WithContext("task", t.id)
		}
		if progress != t.progress {
			t.progress = progress
			t.queue = append(t.queue, event{kind: eventProgress, progress: progress})
		}
	}

	// Drop any stale parked continuation.
	t.waiter = nil

	switch {
	case t.shouldCancel:
		// Dead end: the runner's wait on this checkpoint observes the
		// cancellation error and unwinds.
		err := taskerrors.NewCancelledError(t.id)
		t.err = err
		t.setStateLocked(StateCancelled)
		t.mu.Unlock()
		t.dispatch()
		return err

	case t.shouldPause:
		wake := make(chan error, 1)
		t.waiter = wake
		t.setStateLocked(StatePaused)
		t.mu.Unlock()
		t.dispatch()
		// Parked until Resume resolves the continuation or Cancel rejects
		// it. The waking side has already performed the state transition.
		return <-wake

	default:
		t.mu.Unlock()
		t.dispatch()
		return nil
	}
}

// finish records the terminal outcome, classifying Cancelled vs Failed by
// the error's identity, and clears both intent flags so a finished task's
// flags are deterministically false.
func (t *Task) finish(result interface{}, err error) error {
	t.mu.Lock()
	t.finishedAt = time.Now()

	if err == nil && t.state == StateCancelled {
		// The runner swallowed the cancellation signal and returned
		// normally; the cancelled outcome stands.
		err = t.err
		if err == nil {
			err = taskerrors.NewCancelledError(t.id)
			t.err = err
		}
	}

	if err == nil {
		if t.progress != 1.0 {
			t.progress = 1.0
			t.queue = append(t.queue, event{kind: eventProgress, progress: 1.0})
		}
		t.result = result
		t.setStateLocked(StateSuccess)
	} else {
		if t.err == nil {
			t.err = err
		}
		if !t.state.Terminal() {
			if taskerrors.IsCancelled(err) {
				t.setStateLocked(StateCancelled)
			} else {
				t.setStateLocked(StateFailed)
			}
		}
	}

	t.shouldPause = false
	t.shouldCancel = false
	final := t.state
	t.mu.Unlock()

	close(t.done)
	t.dispatch()

	if err != nil {
		logger.Op.WithField("task", t.id).WithField("state", final.String()).
			WithError(err).Debug("Task finished")
	} else {
		logger.Op.WithField("task", t.id).WithField("state", final.String()).
			Debug("Task finished")
	}
	return err
}

// setStateLocked transitions the state and enqueues the broadcast. The
// caller must hold t.mu.
func (t *Task) setStateLocked(next State) {
	old := t.state
	t.state = next
	t.queue = append(t.queue, event{kind: eventState, change: StateChange{Old: old, New: next}})
}

// dispatch drains the event queue and delivers broadcasts in order. Only one
// goroutine dispatches at a time; re-entrant calls (a listener triggering a
// further transition) enqueue and return, leaving delivery to the active
// dispatcher so ordering is preserved.
func (t *Task) dispatch() {
	t.mu.Lock()
	if t.dispatching {
		t.mu.Unlock()
		return
	}
	t.dispatching = true
	for len(t.queue) > 0 {
		batch := t.queue
		t.queue = nil
		t.mu.Unlock()
		for _, ev := range batch {
			switch ev.kind {
			case eventState:
				t.stateHub.Publish(ev.change)
			case eventProgress:
				t.progressHub.Publish(ev.progress)
			}
		}
		t.mu.Lock()
	}
	t.dispatching = false
	t.mu.Unlock()
}

// watchContext maps ctx cancellation onto the cooperative Cancel call.
func (t *Task) watchContext(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Cancel()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
