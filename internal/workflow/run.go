package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/logger"
	"github.com/taskweave/taskweave/internal/task"
	"github.com/taskweave/taskweave/internal/taskmanager"
)

// Result summarizes one pipeline run.
type Result struct {
	RunID     string
	Succeeded int
	Failed    int
	Cancelled int
	Elapsed   time.Duration
}

// Build assembles the pipeline into a manager and its tasks. The returned
// map is keyed by task name.
func Build(spec *Spec) (*taskmanager.Manager, map[string]*task.Task, error) {
	concurrency := spec.Concurrency
	if concurrency == 0 {
		concurrency = 4
	}
	mgr := taskmanager.New(concurrency)

	tasks := make(map[string]*task.Task, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		tasks[ts.Name] = task.New(ts.Name, syntheticRunner(ts))
	}
	for _, ts := range spec.Tasks {
		t := tasks[ts.Name]
		for _, depName := range ts.DependsOn {
			if err := mgr.AddDependency(t, tasks[depName]); err != nil {
				return nil, nil, fmt.Errorf("failed to wire %q -> %q: %w", ts.Name, depName, err)
			}
		}
	}
	return mgr, tasks, nil
}

// syntheticRunner slices the declared duration into checkpointed steps,
// reporting fractional progress and yielding to pause/cancel between slices.
func syntheticRunner(ts TaskSpec) task.Runner {
	steps := ts.Steps
	if steps < 1 {
		steps = 1
	}
	slice := time.Duration(ts.Duration) / time.Duration(steps)
	return func(ctx context.Context, tc task.Controls) (interface{}, error) {
		for step := 1; step <= steps; step++ {
			if ts.FailAtStep > 0 && step >= ts.FailAtStep {
				return nil, fmt.Errorf("task %s failed at step %d (injected)", ts.Name, step)
			}
			if slice > 0 {
				select {
				case <-time.After(slice):
				case <-ctx.Done():
				}
			}
			if err := tc.CheckpointProgress(float64(step) / float64(steps)); err != nil {
				return nil, err
			}
		}
		return fmt.Sprintf("%s: %d steps completed", ts.Name, steps), nil
	}
}

// Run executes the pipeline to completion and reports a summary. Individual
// task failures do not abort the batch; they are counted and surfaced in the
// summary, with the first failure returned as the run error.
func Run(ctx context.Context, spec *Spec) (*Result, error) {
	mgr, tasks, err := Build(spec)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	result := &Result{RunID: runID}
	start := time.Now()

	logger.User.Startingf("Pipeline %s (%d tasks, concurrency %d, run %s)",
		spec.Name, len(spec.Tasks), mgr.Concurrency(), runID)

	mgr.OnActivated(func(t *task.Task) {
		logger.User.Infof("  started:   %s", t.ID())
	})
	mgr.OnFinished(func(t *task.Task) {
		switch t.State() {
		case task.StateSuccess:
			logger.User.Infof("  finished:  %s (%v)", t.ID(), t.Duration().Round(time.Millisecond))
		case task.StateCancelled:
			logger.User.Warnf("cancelled: %s", t.ID())
		default:
			logger.User.Errorf("failed:    %s: %v", t.ID(), t.Err())
		}
	})

	for _, ts := range spec.Tasks {
		if err := mgr.Submit(ctx, tasks[ts.Name]); err != nil {
			return nil, fmt.Errorf("failed to submit task %q: %w", ts.Name, err)
		}
	}

	if err := mgr.WaitAll(ctx); err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)

	var firstErr error
	for _, ts := range spec.Tasks {
		t := tasks[ts.Name]
		switch t.State() {
		case task.StateSuccess:
			result.Succeeded++
		case task.StateCancelled:
			result.Cancelled++
		default:
			result.Failed++
			if firstErr == nil {
				firstErr = t.Err()
			}
		}
	}

	if result.Failed == 0 && result.Cancelled == 0 {
		logger.User.Successf("Pipeline %s completed: %d/%d tasks in %v",
			spec.Name, result.Succeeded, len(spec.Tasks), result.Elapsed.Round(time.Millisecond))
	} else {
		logger.User.Errorf("Pipeline %s completed: %d succeeded, %d failed, %d cancelled in %v",
			spec.Name, result.Succeeded, result.Failed, result.Cancelled,
			result.Elapsed.Round(time.Millisecond))
	}
	return result, firstErr
}
