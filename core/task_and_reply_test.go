package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSubmitAndReply_RoutesToControl verifies the reply runs on the control
// goroutine during the next frame
// Given: A background task and a reply routed to the next-frame queue
// When: The executor finishes and a frame runs
// Then: The reply ran after the task, on the control goroutine, in Middle
func TestSubmitAndReply_RoutesToControl(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog
	var replyOnControl bool
	var replyPhase Phase

	require.NoError(t, e.SubmitAndReply(
		func(ctx context.Context) { log.Add("task") },
		func(ctx context.Context) {
			log.Add("reply")
			replyOnControl = s.IsControlThread()
			replyPhase = s.CurrentPhase()
		},
		s.NextFrameQueue(),
	))
	waitIdle(t, e)
	require.NoError(t, s.Tick())

	assert.Equal(t, []string{"task", "reply"}, log.Items())
	assert.True(t, replyOnControl)
	assert.Equal(t, PhaseMiddle, replyPhase)
}

// TestSubmitAndReply_SkippedOnPanic verifies a faulted task posts no reply
func TestSubmitAndReply_SkippedOnPanic(t *testing.T) {
	s, faults := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var replied bool

	require.NoError(t, e.SubmitAndReply(
		func(ctx context.Context) { panic("task failed") },
		func(ctx context.Context) { replied = true },
		s.NextFrameQueue(),
	))
	waitIdle(t, e)
	require.NoError(t, s.Tick())

	assert.False(t, replied)
	assert.Len(t, faults.Faults(), 1)
}

// TestSubmitAndReply_SkippedOnCancel verifies a cancelled task posts no reply
func TestSubmitAndReply_SkippedOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	started, finished := make(chan struct{}), make(chan struct{})
	var replied bool

	require.NoError(t, e.SubmitTaggedAndReply(
		func(ctx context.Context) {
			defer close(finished)
			close(started)
			<-ctx.Done()
		},
		5,
		func(ctx context.Context) { replied = true },
		s.NextFrameQueue(),
	))
	<-started
	matched, err := e.CancelAll(5)
	require.NoError(t, err)
	require.True(t, matched)
	<-finished

	waitIdle(t, e)
	require.NoError(t, s.Tick())
	assert.False(t, replied)
}

// TestSubmitAndReply_Validation verifies argument checks
func TestSubmitAndReply_Validation(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	noop := func(ctx context.Context) {}

	assert.ErrorIs(t, e.SubmitAndReply(nil, noop, s.NextFrameQueue()), ErrNullArgument)
	assert.ErrorIs(t, e.SubmitAndReply(noop, nil, s.NextFrameQueue()), ErrNullArgument)
	assert.NoError(t, e.SubmitAndReply(noop, nil, nil))
}

// TestSubmitAndReplyWithResult verifies the result reaches the reply
// Given: A task returning a value and an error
// When: The executor finishes and a frame runs
// Then: The reply receives both
func TestSubmitAndReplyWithResult(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	errPartial := errors.New("partial")

	var gotResult int
	var gotErr error
	require.NoError(t, SubmitAndReplyWithResult(
		e,
		func(ctx context.Context) (int, error) { return 42, errPartial },
		func(ctx context.Context, result int, err error) {
			gotResult, gotErr = result, err
		},
		s.EndFrameQueue(),
	))
	waitIdle(t, e)
	require.NoError(t, s.Tick())

	assert.Equal(t, 42, gotResult)
	assert.ErrorIs(t, gotErr, errPartial)

	assert.ErrorIs(t, SubmitAndReplyWithResult[int](e, nil, nil, nil), ErrNullArgument)
}
