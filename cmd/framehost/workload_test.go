package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-frame-runner/core"
)

// TestWorkload_SubmitsAndCollectsReplies verifies the demo workload round
// trips jobs through the executor
// Given: A workload submitting a job every second frame
// When: The scheduler ticks 30 frames and the executor drains
// Then: Every frame with a job submitted one, and replies arrive on the control goroutine
func TestWorkload_SubmitsAndCollectsReplies(t *testing.T) {
	s := core.NewFrameScheduler(&core.SchedulerConfig{Name: "workload"})
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Shutdown() })

	w, err := newWorkload(s, &core.ExecutorConfig{Name: "jobs"}, 2, nil)
	require.NoError(t, err)

	for range 30 {
		require.NoError(t, s.Tick())
		time.Sleep(time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.executor.WaitIdle(ctx))
	require.NoError(t, s.Tick())

	summary := w.summary()
	assert.Equal(t, 15, summary.Submitted)
	assert.Positive(t, summary.Replied)
	assert.LessOrEqual(t, summary.Replied, summary.Submitted)
	assert.GreaterOrEqual(t, summary.Stats.Executed+summary.Stats.Cancelled, int64(summary.Submitted))
}

func TestNewWorkload_ClosedScheduler(t *testing.T) {
	s := core.NewFrameScheduler(&core.SchedulerConfig{Name: "closed"})
	require.NoError(t, s.Init())
	require.NoError(t, s.Shutdown())

	_, err := newWorkload(s, nil, 1, nil)
	assert.ErrorIs(t, err, core.ErrSchedulerClosed)
}
