package task

import (
	"context"

	taskerrors "github.com/taskweave/taskweave/internal/errors"
)

// Group is a composite task whose body drives a fixed set of child tasks.
// Its own Pause, Resume and Cancel apply first to the group and then fan out
// to every child, best-effort: a child already in a terminal state simply
// ignores the redundant call.
type Group struct {
	*Task
	children []*Task
}

type childOutcome struct {
	index  int
	result interface{}
	err    error
}

// All builds a composite that starts every child concurrently when it starts
// and succeeds with the ordered list of child results once every child
// succeeds. The first child failure or cancellation becomes the group's own
// outcome; the remaining children are left to finish independently.
func All(children ...*Task) *Group {
	g := &Group{children: children}
	g.Task = New("", func(ctx context.Context, tc Controls) (interface{}, error) {
		outcomes := launch(ctx, children)
		results := make([]interface{}, len(children))
		for range children {
			o := <-outcomes
			if o.err != nil {
				return nil, o.err
			}
			results[o.index] = o.result
		}
		return results, nil
	})
	return g
}

// Race builds a composite that starts every child concurrently and adopts
// the outcome of the first child to settle, whether success, failure or
// cancellation. Non-winning children keep running unless cancelled
// explicitly.
func Race(children ...*Task) *Group {
	g := &Group{children: children}
	g.Task = New("", func(ctx context.Context, tc Controls) (interface{}, error) {
		if len(children) == 0 {
			return nil, taskerrors.NewValidationError("race needs at least one child", "race")
		}
		outcomes := launch(ctx, children)
		o := <-outcomes
		return o.result, o.err
	})
	return g
}

// launch starts every child on its own goroutine. The channel is buffered so
// late finishers never leak a goroutine.
func launch(ctx context.Context, children []*Task) <-chan childOutcome {
	outcomes := make(chan childOutcome, len(children))
	for i, child := range children {
		go func(index int, c *Task) {
			result, err := c.Run(ctx)
			outcomes <- childOutcome{index: index, result: result, err: err}
		}(i, child)
	}
	return outcomes
}

// Children returns the fixed child list supplied at construction.
func (g *Group) Children() []*Task {
	children := make([]*Task, len(g.children))
	copy(children, g.children)
	return children
}

// Pause pauses the group itself, then fans out to every child.
func (g *Group) Pause() error {
	if err := g.Task.Pause(); err != nil {
		return err
	}
	for _, child := range g.children {
		_ = child.Pause()
	}
	return nil
}

// Resume resumes the group itself, then fans out to every child.
func (g *Group) Resume() error {
	if err := g.Task.Resume(); err != nil {
		return err
	}
	for _, child := range g.children {
		_ = child.Resume()
	}
	return nil
}

// Cancel cancels the group itself, then fans out to every child.
func (g *Group) Cancel() error {
	if err := g.Task.Cancel(); err != nil {
		return err
	}
	for _, child := range g.children {
		_ = child.Cancel()
	}
	return nil
}
