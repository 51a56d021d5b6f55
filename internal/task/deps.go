package task

import (
	"context"

	taskerrors "github.com/taskweave/taskweave/internal/errors"
	"github.com/taskweave/taskweave/internal/notify"
)

// AddDependency records dep as a prerequisite of t. The edge is rejected
// with a cycle error, before any state is mutated, if dep is t itself or if
// t is reachable from dep through already-recorded dependencies.
func (t *Task) AddDependency(dep *Task) error {
	if dep == nil {
		return taskerrors.NewValidationError("dependency cannot be nil", "add dependency").
			WithContext("task", t.id)
	}
	if dep == t {
		return taskerrors.NewCycleError(t.id, dep.id)
	}
	if dep.reaches(t) {
		return taskerrors.NewCycleError(t.id, dep.id)
	}
	// Defensive: refuse edges from a graph that is already corrupt (dep
	// appearing in its own transitive closure).
	for _, d := range dep.Dependencies() {
		if d.reaches(dep) {
			return taskerrors.NewCycleError(t.id, dep.id)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.deps {
		if existing == dep {
			return nil
		}
	}
	t.deps = append(t.deps, dep)
	return nil
}

// AddDependencies records every task in deps as a prerequisite, stopping at
// the first rejected edge.
func (t *Task) AddDependencies(deps []*Task) error {
	for _, dep := range deps {
		if err := t.AddDependency(dep); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDependency removes dep from the dependency set. Removing an unknown
// dependency is a no-op.
func (t *Task) RemoveDependency(dep *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.deps {
		if existing == dep {
			t.deps = append(t.deps[:i], t.deps[i+1:]...)
			return
		}
	}
}

// ClearDependencies removes every recorded dependency.
func (t *Task) ClearDependencies() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deps = nil
}

// Dependencies returns a snapshot of the dependency set.
func (t *Task) Dependencies() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	deps := make([]*Task, len(t.deps))
	copy(deps, t.deps)
	return deps
}

// reaches reports whether target is reachable from t through recorded
// dependencies. The visited set keeps diamond-shaped graphs linear.
func (t *Task) reaches(target *Task) bool {
	visited := make(map[*Task]bool)
	var dfs func(*Task) bool
	dfs = func(n *Task) bool {
		if n == target {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, dep := range n.Dependencies() {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(t)
}

// awaitDependencies blocks until every dependency succeeds, any dependency
// fails or is cancelled, or ctx is done. The first failing condition wins;
// remaining dependencies are not waited for.
func (t *Task) awaitDependencies(ctx context.Context, deps []*Task) error {
	ready := make(chan error, 1)
	settle := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	evaluate := func() {
		for _, dep := range deps {
			switch dep.State() {
			case StateFailed:
				settle(taskerrors.NewDependencyFailedError(t.id, dep.ID(), dep.Err()))
				return
			case StateCancelled:
				settle(taskerrors.NewCancelledError(t.id).WithContext("dependency", dep.ID()))
				return
			}
		}
		for _, dep := range deps {
			if dep.State() != StateSuccess {
				return
			}
		}
		settle(nil)
	}

	subs := make([]*notify.Subscription[StateChange], 0, len(deps))
	for _, dep := range deps {
		subs = append(subs, dep.OnStateChange(func(StateChange) {
			evaluate()
		}))
	}
	defer func() {
		for _, sub := range subs {
			sub.Remove()
		}
	}()

	// Eager pass: dependencies may already be settled.
	evaluate()

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return taskerrors.NewCancelledError(t.id).WithOriginalError(ctx.Err())
	}
}
