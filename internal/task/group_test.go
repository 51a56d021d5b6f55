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

func sleeper(d time.Duration, result interface{}) *Task {
	return New("", func(ctx context.Context, tc Controls) (interface{}, error) {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
			if err := tc.Checkpoint(); err != nil {
				return nil, err
			}
		}
		return result, nil
	})
}

func TestAll_Success(t *testing.T) {
	g := All(
		sleeper(5*time.Millisecond, "a"),
		sleeper(15*time.Millisecond, "b"),
		sleeper(10*time.Millisecond, "c"),
	)

	result, err := g.Run(context.Background())

	require.NoError(t, err)
	// Results keep construction order regardless of finish order.
	assert.Equal(t, []interface{}{"a", "b", "c"}, result)
	assert.Equal(t, StateSuccess, g.State())
	for _, child := range g.Children() {
		assert.Equal(t, StateSuccess, child.State())
	}
}

func TestAll_Empty(t *testing.T) {
	g := All()

	result, err := g.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, result)
}

func TestAll_FirstFailureWins(t *testing.T) {
	boom := errors.New("boom")
	failing := New("failing", func(ctx context.Context, tc Controls) (interface{}, error) {
		return nil, boom
	})
	slow := sleeper(50*time.Millisecond, "slow")
	g := All(failing, slow)

	_, err := g.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, g.State())
	// The losing child is left to finish on its own.
	_, _ = slow.Wait(context.Background())
	assert.Equal(t, StateSuccess, slow.State())
}

func TestAll_ChildCancellationCancelsGroup(t *testing.T) {
	victim := New("victim", func(ctx context.Context, tc Controls) (interface{}, error) {
		_ = tc.Cancel()
		return nil, tc.Checkpoint()
	})
	g := All(victim, sleeper(30*time.Millisecond, "other"))

	_, err := g.Run(context.Background())

	require.Error(t, err)
	assert.True(t, taskerrors.IsCancelled(err))
	assert.Equal(t, StateCancelled, g.State())
}

func TestRace_FastestWins(t *testing.T) {
	fast := sleeper(5*time.Millisecond, "fast")
	slow := sleeper(60*time.Millisecond, "slow")
	g := Race(fast, slow)

	result, err := g.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "fast", result)
	assert.Equal(t, StateSuccess, g.State())
	// The slower child keeps running; the race does not cancel it.
	_, _ = slow.Wait(context.Background())
	assert.Equal(t, StateSuccess, slow.State())
}

func TestRace_FirstFailureWins(t *testing.T) {
	boom := errors.New("boom")
	failing := New("failing", func(ctx context.Context, tc Controls) (interface{}, error) {
		return nil, boom
	})
	g := Race(failing, sleeper(50*time.Millisecond, "slow"))

	_, err := g.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, g.State())
}

func TestRace_Empty(t *testing.T) {
	g := Race()

	_, err := g.Run(context.Background())

	require.Error(t, err)
	assert.True(t, taskerrors.IsValidation(err))
	assert.Equal(t, StateFailed, g.State())
}

func TestGroup_CancelFansOut(t *testing.T) {
	childEntered := make(chan struct{})
	child := New("child", func(ctx context.Context, tc Controls) (interface{}, error) {
		close(childEntered)
		for {
			time.Sleep(time.Millisecond)
			if err := tc.Checkpoint(); err != nil {
				return nil, err
			}
		}
	})
	g := All(child)

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		_, runErr = g.Run(context.Background())
	}()

	<-childEntered
	require.NoError(t, g.Cancel())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled group did not finish")
	}
	require.Error(t, runErr)
	assert.True(t, taskerrors.IsCancelled(runErr))
	assert.Equal(t, StateCancelled, g.State())
	assert.Equal(t, StateCancelled, child.State())
}

func TestGroup_PauseResumeFansOut(t *testing.T) {
	childEntered := make(chan struct{})
	child := New("child", func(ctx context.Context, tc Controls) (interface{}, error) {
		close(childEntered)
		for i := 0; i < 3; i++ {
			time.Sleep(2 * time.Millisecond)
			if err := tc.Checkpoint(); err != nil {
				return nil, err
			}
		}
		return "ok", nil
	})
	g := All(child)

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		_, runErr = g.Run(context.Background())
	}()

	<-childEntered
	require.NoError(t, g.Pause())
	waitForState(t, child, StatePaused)

	require.NoError(t, g.Resume())

	<-done
	require.NoError(t, runErr)
	assert.Equal(t, StateSuccess, g.State())
	assert.Equal(t, StateSuccess, child.State())
}
