// Package taskmanager implements a bounded-concurrency admission controller
// over a dependency graph of tasks: submitted tasks queue in FIFO order and
// are started as capacity frees up and their dependencies succeed.
package taskmanager

import (
	"context"
	"fmt"
	"sync"

	taskerrors "github.com/taskweave/taskweave/internal/errors"
	"github.com/taskweave/taskweave/internal/logger"
	"github.com/taskweave/taskweave/internal/notify"
	"github.com/taskweave/taskweave/internal/task"
)

// Stats is a point-in-time snapshot of the manager's queue and sets.
type Stats struct {
	Pending  int
	Active   int
	Finished int
}

// Manager owns a pending queue, an active set and a finished set, and
// re-evaluates admission whenever a tracked task's state changes. It never
// intercepts a task's terminal error; outcomes propagate through each task's
// own Wait/Err.
type Manager struct {
	mu          sync.Mutex
	limit       int
	pending     []*task.Task
	active      map[*task.Task]struct{}
	finished    map[*task.Task]struct{}
	subs        map[*task.Task]*notify.Subscription[task.StateChange]
	depSubs     map[*task.Task]*notify.Subscription[task.StateChange]
	ctxs        map[*task.Task]context.Context
	waiters     []chan struct{}
	allDoneSent bool

	activatedHub notify.Hub[*task.Task]
	finishedHub  notify.Hub[*task.Task]
	allDoneHub   notify.Hub[struct{}]
}

// New creates a manager with the given concurrency limit. Limits below 1 are
// clamped to 1.
func New(concurrency int) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		limit:    concurrency,
		active:   make(map[*task.Task]struct{}),
		finished: make(map[*task.Task]struct{}),
		subs:     make(map[*task.Task]*notify.Subscription[task.StateChange]),
		depSubs:  make(map[*task.Task]*notify.Subscription[task.StateChange]),
		ctxs:     make(map[*task.Task]context.Context),
	}
}

// Concurrency returns the current concurrency limit.
func (m *Manager) Concurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

// SetConcurrency changes the concurrency limit at runtime and re-runs the
// admission sweep, so raising the limit starts newly admissible tasks
// immediately.
func (m *Manager) SetConcurrency(concurrency int) error {
	if concurrency < 1 {
		return taskerrors.NewValidationError(
			fmt.Sprintf("concurrency must be positive, got %d", concurrency), "set concurrency")
	}
	m.mu.Lock()
	m.limit = concurrency
	m.mu.Unlock()
	m.sweep()
	return nil
}

// Submit tracks t under this manager, wiring any given dependencies first.
// A task owned by a different manager is rejected. A task that already
// reached a terminal state under this manager is cleared from the finished
// set and re-enters the admission pipeline. If t is already active for some
// external reason it is simply tracked; otherwise it is started immediately
// when capacity allows, or queued.
//
// ctx is the context the task will eventually be started with.
func (m *Manager) Submit(ctx context.Context, t *task.Task, deps ...*task.Task) error {
	if t == nil {
		return taskerrors.NewValidationError("task cannot be nil", "submit")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := t.Claim(m); err != nil {
		return err
	}
	for _, dep := range deps {
		if err := t.AddDependency(dep); err != nil {
			return err
		}
		m.watchDependency(dep)
	}

	m.mu.Lock()
	delete(m.finished, t)
	m.allDoneSent = false
	if m.trackedLocked(t) {
		m.mu.Unlock()
		m.sweep()
		return nil
	}
	m.ctxs[t] = ctx
	if m.subs[t] == nil {
		m.subs[t] = t.OnStateChange(func(change task.StateChange) {
			m.onStateChange(t, change)
		})
	}
	if t.State().Active() || t.State() == task.StateWaiting {
		// Started externally: just track it.
		m.active[t] = struct{}{}
	} else {
		m.pending = append(m.pending, t)
	}
	m.mu.Unlock()

	logger.Op.WithField("task", t.ID()).Debug("Task submitted")
	m.sweep()
	return nil
}

// SubmitFunc wraps runner in a new task and submits it.
func (m *Manager) SubmitFunc(ctx context.Context, id string, runner task.Runner, deps ...*task.Task) (*task.Task, error) {
	t := task.New(id, runner)
	if err := m.Submit(ctx, t, deps...); err != nil {
		return nil, err
	}
	return t, nil
}

// AddDependency records dep as a prerequisite of t, with the same cycle
// check as task-level AddDependency, across any tasks this manager has
// wrapped.
func (m *Manager) AddDependency(t, dep *task.Task) error {
	if t == nil || dep == nil {
		return taskerrors.NewValidationError("task and dependency must be non-nil", "add dependency")
	}
	if err := t.AddDependency(dep); err != nil {
		return err
	}
	m.watchDependency(dep)
	return nil
}

// watchDependency re-runs the admission sweep whenever a dependency that is
// not itself managed reaches a terminal state, so queued dependents are
// re-considered even when the dependency finished outside this manager.
func (m *Manager) watchDependency(dep *task.Task) {
	m.mu.Lock()
	if m.subs[dep] != nil || m.depSubs[dep] != nil {
		m.mu.Unlock()
		return
	}
	m.depSubs[dep] = dep.OnStateChange(func(change task.StateChange) {
		if change.New.Terminal() {
			m.sweep()
		}
	})
	m.mu.Unlock()
}

// OnActivated subscribes to tasks entering the active set.
func (m *Manager) OnActivated(fn func(*task.Task)) *notify.Subscription[*task.Task] {
	return m.activatedHub.Subscribe(fn)
}

// OnFinished subscribes to tasks reaching a terminal state.
func (m *Manager) OnFinished(fn func(*task.Task)) *notify.Subscription[*task.Task] {
	return m.finishedHub.Subscribe(fn)
}

// OnAllFinished subscribes to the moment every tracked task has finished.
func (m *Manager) OnAllFinished(fn func(struct{})) *notify.Subscription[struct{}] {
	return m.allDoneHub.Subscribe(fn)
}

// IsAllFinished reports whether the pending queue and active set are both
// empty.
func (m *Manager) IsAllFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) == 0 && len(m.active) == 0
}

// WaitAll blocks until the pending queue and active set are both empty. It
// returns immediately if that is already true.
func (m *Manager) WaitAll(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if len(m.pending) == 0 && len(m.active) == 0 {
		m.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current queue/set sizes.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Pending:  len(m.pending),
		Active:   len(m.active),
		Finished: len(m.finished),
	}
}

func (m *Manager) trackedLocked(t *task.Task) bool {
	if _, ok := m.active[t]; ok {
		return true
	}
	for _, p := range m.pending {
		if p == t {
			return true
		}
	}
	return false
}

func (m *Manager) removeFromPendingLocked(t *task.Task) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// onStateChange is the instrumentation attached to every tracked task.
func (m *Manager) onStateChange(t *task.Task, change task.StateChange) {
	switch {
	case change.New.Active() && !change.Old.Active():
		m.mu.Lock()
		m.removeFromPendingLocked(t)
		if _, done := m.finished[t]; !done {
			m.active[t] = struct{}{}
		}
		m.mu.Unlock()
		m.activatedHub.Publish(t)

	case change.New.Terminal():
		m.mu.Lock()
		delete(m.active, t)
		m.removeFromPendingLocked(t)
		m.finished[t] = struct{}{}
		m.mu.Unlock()
		logger.Op.WithField("task", t.ID()).WithField("state", change.New.String()).
			Debug("Task finished under manager")
		m.finishedHub.Publish(t)
		m.sweep()
	}
}

// sweep scans the pending queue in order and starts every task whose
// dependencies are settled while capacity remains. Tasks with unsettled
// dependencies are skipped in place, preserving queue order for the next
// sweep. Starting happens outside the lock, so state broadcasts triggered by
// a started task cannot corrupt the queue being iterated.
func (m *Manager) sweep() {
	type admission struct {
		t   *task.Task
		ctx context.Context
	}

	m.mu.Lock()
	var toStart []admission
	var remaining []*task.Task
	for i, t := range m.pending {
		if len(m.active) >= m.limit {
			remaining = append(remaining, m.pending[i:]...)
			break
		}
		state := t.State()
		switch {
		case state.Terminal():
			// Resubmitted finished object: nothing to run.
			m.finished[t] = struct{}{}
		case state != task.StatePending:
			// Started externally while queued.
			m.active[t] = struct{}{}
		case m.admissibleLocked(t):
			m.active[t] = struct{}{}
			toStart = append(toStart, admission{t: t, ctx: m.ctxs[t]})
		default:
			remaining = append(remaining, t)
		}
	}
	m.pending = remaining
	m.mu.Unlock()

	for _, adm := range toStart {
		logger.Op.WithField("task", adm.t.ID()).Debug("Task admitted")
		go func(adm admission) {
			// Errors are not swallowed: they remain observable through the
			// task's own Wait/Err.
			_, _ = adm.t.Run(adm.ctx)
		}(adm)
	}

	m.checkAllFinished()
}

// admissibleLocked reports whether t may start now. All dependencies
// successful admits it normally; a failed or cancelled dependency also
// admits it, so the dependency outcome can classify the task and move it to
// the finished set instead of stranding it in the queue.
func (m *Manager) admissibleLocked(t *task.Task) bool {
	deps := t.Dependencies()
	for _, dep := range deps {
		switch dep.State() {
		case task.StateFailed, task.StateCancelled:
			return true
		}
	}
	for _, dep := range deps {
		if dep.State() != task.StateSuccess {
			return false
		}
	}
	return true
}

func (m *Manager) checkAllFinished() {
	m.mu.Lock()
	idle := len(m.pending) == 0 && len(m.active) == 0
	var waiters []chan struct{}
	broadcast := false
	if idle {
		waiters = m.waiters
		m.waiters = nil
		if len(m.finished) > 0 && !m.allDoneSent {
			m.allDoneSent = true
			broadcast = true
		}
	}
	m.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if broadcast {
		logger.Op.Debug("All managed tasks finished")
		m.allDoneHub.Publish(struct{}{})
	}
}
