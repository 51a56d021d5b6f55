package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskerrors "github.com/taskweave/taskweave/internal/errors"
)

func nopRunner(ctx context.Context, tc Controls) (interface{}, error) {
	return nil, nil
}

func TestAddDependency(t *testing.T) {
	t.Run("records the edge", func(t *testing.T) {
		a := New("a", nopRunner)
		b := New("b", nopRunner)

		require.NoError(t, a.AddDependency(b))
		deps := a.Dependencies()
		require.Len(t, deps, 1)
		assert.Same(t, b, deps[0])
	})

	t.Run("duplicate edge is a no-op", func(t *testing.T) {
		a := New("a", nopRunner)
		b := New("b", nopRunner)

		require.NoError(t, a.AddDependency(b))
		require.NoError(t, a.AddDependency(b))
		assert.Len(t, a.Dependencies(), 1)
	})

	t.Run("nil dependency is rejected", func(t *testing.T) {
		a := New("a", nopRunner)

		err := a.AddDependency(nil)
		require.Error(t, err)
		assert.True(t, taskerrors.IsValidation(err))
	})

	t.Run("self dependency is rejected", func(t *testing.T) {
		a := New("a", nopRunner)

		err := a.AddDependency(a)
		require.Error(t, err)
		assert.True(t, taskerrors.IsCycle(err))
		assert.Empty(t, a.Dependencies())
	})

	t.Run("two node cycle is rejected without a partial edge", func(t *testing.T) {
		a := New("a", nopRunner)
		b := New("b", nopRunner)

		require.NoError(t, a.AddDependency(b))
		err := b.AddDependency(a)
		require.Error(t, err)
		assert.True(t, taskerrors.IsCycle(err))
		assert.Empty(t, b.Dependencies())
		assert.Len(t, a.Dependencies(), 1)
	})

	t.Run("transitive cycle is rejected", func(t *testing.T) {
		a := New("a", nopRunner)
		b := New("b", nopRunner)
		c := New("c", nopRunner)

		require.NoError(t, a.AddDependency(b))
		require.NoError(t, b.AddDependency(c))
		err := c.AddDependency(a)
		require.Error(t, err)
		assert.True(t, taskerrors.IsCycle(err))
		assert.Empty(t, c.Dependencies())
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		top := New("top", nopRunner)
		left := New("left", nopRunner)
		right := New("right", nopRunner)
		bottom := New("bottom", nopRunner)

		require.NoError(t, left.AddDependency(top))
		require.NoError(t, right.AddDependency(top))
		require.NoError(t, bottom.AddDependencies([]*Task{left, right}))
		assert.Len(t, bottom.Dependencies(), 2)
	})
}

func TestRemoveDependency(t *testing.T) {
	a := New("a", nopRunner)
	b := New("b", nopRunner)
	c := New("c", nopRunner)

	require.NoError(t, a.AddDependencies([]*Task{b, c}))
	a.RemoveDependency(b)
	deps := a.Dependencies()
	require.Len(t, deps, 1)
	assert.Same(t, c, deps[0])

	a.ClearDependencies()
	assert.Empty(t, a.Dependencies())
}

func TestRun_WaitsForDependencies(t *testing.T) {
	depRelease := make(chan struct{})
	dep := New("dep", func(ctx context.Context, tc Controls) (interface{}, error) {
		<-depRelease
		return "dep result", nil
	})
	var depWasDone bool
	child := New("child", func(ctx context.Context, tc Controls) (interface{}, error) {
		depWasDone = dep.Is(StateSuccess)
		return "child result", nil
	})
	require.NoError(t, child.AddDependency(dep))

	go func() { _, _ = dep.Run(context.Background()) }()

	childDone := make(chan struct{})
	var childResult interface{}
	var childErr error
	go func() {
		defer close(childDone)
		childResult, childErr = child.Run(context.Background())
	}()

	waitForState(t, child, StateWaiting)
	assert.Equal(t, StateWaiting, child.State())

	close(depRelease)
	<-childDone
	require.NoError(t, childErr)
	assert.Equal(t, "child result", childResult)
	assert.True(t, depWasDone, "dependency must be finished before the dependent runs")
}

func TestRun_DependencyAlreadyFinished(t *testing.T) {
	dep := New("dep", nopRunner)
	_, err := dep.Run(context.Background())
	require.NoError(t, err)

	child := New("child", nopRunner)
	require.NoError(t, child.AddDependency(dep))

	_, err = child.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, child.State())
}

func TestRun_DependencyFailure(t *testing.T) {
	boom := errors.New("boom")
	dep := New("dep", func(ctx context.Context, tc Controls) (interface{}, error) {
		return nil, boom
	})
	ran := false
	child := New("child", func(ctx context.Context, tc Controls) (interface{}, error) {
		ran = true
		return nil, nil
	})
	require.NoError(t, child.AddDependency(dep))

	_, _ = dep.Run(context.Background())
	_, err := child.Run(context.Background())

	require.Error(t, err)
	assert.True(t, taskerrors.IsDependencyFailed(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, child.State())
	assert.False(t, ran)

	te, ok := taskerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "dep", te.Dependency())
}

func TestRun_DependencyCancelled(t *testing.T) {
	entered := make(chan struct{})
	dep := New("dep", func(ctx context.Context, tc Controls) (interface{}, error) {
		close(entered)
		return nil, tc.Checkpoint()
	})
	child := New("child", nopRunner)
	require.NoError(t, child.AddDependency(dep))

	go func() {
		<-entered
		_ = dep.Cancel()
	}()
	_, _ = dep.Run(context.Background())
	require.Equal(t, StateCancelled, dep.State())

	_, err := child.Run(context.Background())
	require.Error(t, err)
	assert.True(t, taskerrors.IsCancelled(err))
	// Cancellation cascades: the dependent is Cancelled, not Failed.
	assert.Equal(t, StateCancelled, child.State())
}

func TestRun_ContextCancelledWhileWaiting(t *testing.T) {
	dep := New("dep", func(ctx context.Context, tc Controls) (interface{}, error) {
		select {} // never finishes
	})
	child := New("child", nopRunner)
	require.NoError(t, child.AddDependency(dep))

	ctx, cancel := context.WithCancel(context.Background())
	childDone := make(chan struct{})
	var childErr error
	go func() {
		defer close(childDone)
		_, childErr = child.Run(ctx)
	}()

	waitForState(t, child, StateWaiting)
	cancel()

	select {
	case <-childDone:
	case <-time.After(time.Second):
		t.Fatal("waiting task did not observe context cancellation")
	}
	assert.True(t, taskerrors.IsCancelled(childErr))
	assert.Equal(t, StateCancelled, child.State())
}
