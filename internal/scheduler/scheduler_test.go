package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_EveryRunsImmediately(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.Every("tick", time.Hour, func(context.Context) {
		runs.Add(1)
	}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsContext(t *testing.T) {
	s, err := New(time.UTC)
	require.NoError(t, err)

	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.Every("blocking", time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}))
	s.Start()

	<-started
	require.NoError(t, s.Stop())

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe cancellation")
	}
}

func TestScheduler_Validation(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	require.Error(t, s.Every("zero", 0, func(context.Context) {}))
	require.Error(t, s.Daily("late", 24, func(context.Context) {}))
	require.NoError(t, s.Daily("digest", 9, func(context.Context) {}))
}
