package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/birddigital/voicebridge/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndAwaitReturnsValue(t *testing.T) {
	e := tasks.New(0)
	defer e.Close()

	e.Run(context.Background(), "call-1:lookup", 0, func(ctx context.Context) (any, error) {
		return "balance: $42", nil
	})

	res, err := e.Await(context.Background(), "call-1:lookup")
	require.NoError(t, err)
	assert.Equal(t, "balance: $42", res.Value)
	assert.NoError(t, res.Err)
}

func TestRunTimesOut(t *testing.T) {
	e := tasks.New(0)
	defer e.Close()

	e.Run(context.Background(), "call-1:slow", 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, nil
	})

	res, err := e.Await(context.Background(), "call-1:slow")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, tasks.ErrTimeout)
}

func TestAwaitUnknownKeyReturnsErrNotFound(t *testing.T) {
	e := tasks.New(0)
	defer e.Close()

	_, err := e.Await(context.Background(), "nope")
	assert.ErrorIs(t, err, tasks.ErrNotFound)
}

func TestCancelStopsJobsByKeyPrefix(t *testing.T) {
	e := tasks.New(0)
	defer e.Close()

	started := make(chan struct{})
	e.Run(context.Background(), "call-2:task-a", 0, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	e.Cancel("call-2:")

	res, err := e.Await(context.Background(), "call-2:task-a")
	require.NoError(t, err)
	assert.True(t, errors.Is(res.Err, context.Canceled) || res.Err != nil)
}

func TestCloseWaitsForRunningJobs(t *testing.T) {
	e := tasks.New(0)
	finished := false

	e.Run(context.Background(), "call-3:job", 0, func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		finished = true
		return nil, nil
	})

	e.Close()
	assert.True(t, finished)
}
