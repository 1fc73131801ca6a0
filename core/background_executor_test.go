package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, s *FrameScheduler, cfg *ExecutorConfig) *BackgroundExecutor {
	t.Helper()
	if cfg == nil {
		cfg = &ExecutorConfig{Name: "bg"}
	}
	e, err := s.NewBackgroundExecutor(cfg)
	require.NoError(t, err)
	return e
}

func waitIdle(t *testing.T, e *BackgroundExecutor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(ctx))
}

// blocker returns a task that signals started and then blocks until release
// is closed, ignoring its context.
func blocker(started chan<- struct{}, release <-chan struct{}) Task {
	return func(ctx context.Context) {
		close(started)
		<-release
	}
}

// TestBackgroundExecutor_ExecutionOrder verifies FIFO execution on one worker
// Given: Ten items submitted from the control goroutine
// When: The executor goes idle
// Then: They ran in submission order on a single goroutine
func TestBackgroundExecutor_ExecutionOrder(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog
	var running atomic.Int32
	var overlapped atomic.Bool

	for i := range 10 {
		require.NoError(t, e.Submit(func(ctx context.Context) {
			if running.Add(1) > 1 {
				overlapped.Store(true)
			}
			defer running.Add(-1)
			log.Add(string(rune('a' + i)))
		}))
	}
	waitIdle(t, e)

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, log.Items())
	assert.False(t, overlapped.Load())
	assert.GreaterOrEqual(t, e.Stats().Executed, int64(10))
}

// TestBackgroundExecutor_LazyStart verifies no worker runs before the first
// submission
func TestBackgroundExecutor_LazyStart(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)

	assert.Equal(t, uint64(0), e.Stats().Generation)
	require.NoError(t, e.Submit(func(ctx context.Context) {}))
	assert.Equal(t, uint64(1), e.Stats().Generation)
}

// TestBackgroundExecutor_ControlOnly verifies submission and cancellation
// are restricted to the control goroutine
func TestBackgroundExecutor_ControlOnly(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)

	onOtherGoroutine(func() {
		assert.ErrorIs(t, e.Submit(func(ctx context.Context) {}), ErrWrongThread)
		assert.ErrorIs(t, e.SubmitTagged(func(ctx context.Context) {}, 1), ErrWrongThread)
		_, err := e.CancelAll(1)
		assert.ErrorIs(t, err, ErrWrongThread)
	})
	assert.ErrorIs(t, e.Submit(nil), ErrNullArgument)
	assert.Equal(t, 0, e.Pending())
}

// TestBackgroundExecutor_CancelQueued verifies queued items are dropped by tag
// Given: A busy worker and queued items tagged 1, 2, 1 and one untagged
// When: CancelAll(1) is called
// Then: Both tag-1 items are dropped and the rest run in order
func TestBackgroundExecutor_CancelQueued(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, e.Submit(blocker(started, release)))
	<-started

	require.NoError(t, e.SubmitTagged(func(ctx context.Context) { log.Add("1a") }, 1))
	require.NoError(t, e.SubmitTagged(func(ctx context.Context) { log.Add("2") }, 2))
	require.NoError(t, e.SubmitTagged(func(ctx context.Context) { log.Add("1b") }, 1))
	require.NoError(t, e.Submit(func(ctx context.Context) { log.Add("untagged") }))

	matched, err := e.CancelAll(1)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, 2, e.Pending())

	close(release)
	waitIdle(t, e)

	assert.Equal(t, []string{"2", "untagged"}, log.Items())
	assert.Equal(t, int64(2), e.Stats().Cancelled)
}

// TestBackgroundExecutor_CancelNoMatch verifies a no-match cancellation
// Given: A busy worker and three queued items tagged 1, 2, 3
// When: CancelAll(9) is called
// Then: It reports no match and the queue runs unchanged
func TestBackgroundExecutor_CancelNoMatch(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, e.Submit(blocker(started, release)))
	<-started

	for _, name := range []string{"1", "2", "3"} {
		tag := Tag(name[0] - '0')
		require.NoError(t, e.SubmitTagged(func(ctx context.Context) { log.Add(name) }, tag))
	}

	matched, err := e.CancelAll(9)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, 3, e.Pending())
	assert.Equal(t, uint64(1), e.Stats().Generation)

	close(release)
	waitIdle(t, e)

	assert.Equal(t, []string{"1", "2", "3"}, log.Items())
	assert.Zero(t, e.Stats().Cancelled)
}

// TestBackgroundExecutor_CancelInFlightCheckpoint verifies cooperative
// termination of the in-flight item
// Given: An in-flight item tagged 7 that loops on Checkpoint, and queued
// items tagged 8 and untagged
// When: CancelAll(7) is called
// Then: The item unwinds at its checkpoint without a fault, the worker is
// replaced and the queued items run
func TestBackgroundExecutor_CancelInFlightCheckpoint(t *testing.T) {
	s, faults := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog
	var iterations atomic.Int64
	var cause atomic.Value
	started := make(chan struct{})

	require.NoError(t, e.SubmitTagged(func(ctx context.Context) {
		close(started)
		for {
			time.Sleep(time.Millisecond)
			if ctx.Err() != nil {
				cause.Store(context.Cause(ctx))
			}
			Checkpoint(ctx)
			iterations.Add(1)
		}
	}, 7))
	require.NoError(t, e.SubmitTagged(func(ctx context.Context) { log.Add("8") }, 8))
	require.NoError(t, e.Submit(func(ctx context.Context) { log.Add("untagged") }))
	<-started

	tag, ok := e.ExecutingTag()
	require.True(t, ok)
	assert.Equal(t, Tag(7), tag)

	matched, err := e.CancelAll(7)
	require.NoError(t, err)
	assert.True(t, matched)
	waitIdle(t, e)

	assert.Equal(t, []string{"8", "untagged"}, log.Items())
	assert.Equal(t, uint64(2), e.Stats().Generation)

	require.Eventually(t, func() bool {
		for _, rec := range e.RecentExecutions(0) {
			if rec.Tagged && rec.Tag == 7 {
				return rec.Cancelled && !rec.Panicked
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	settled := iterations.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, settled, iterations.Load())
	assert.Empty(t, faults.Faults())
	assert.True(t, errors.Is(cause.Load().(error), ErrExecutionCancelled))
}

// TestBackgroundExecutor_CancelInFlightUncooperative verifies an item that
// ignores its context does not hold up the queue
// Given: An in-flight item tagged 3 blocked on a channel
// When: CancelAll(3) is called
// Then: The following items run while the abandoned item is still blocked
func TestBackgroundExecutor_CancelInFlightUncooperative(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var log orderLog

	started, release := make(chan struct{}), make(chan struct{})
	var abandonedDone atomic.Bool
	require.NoError(t, e.SubmitTagged(func(ctx context.Context) {
		close(started)
		<-release
		abandonedDone.Store(true)
	}, 3))
	require.NoError(t, e.Submit(func(ctx context.Context) { log.Add("next") }))
	<-started

	matched, err := e.CancelAll(3)
	require.NoError(t, err)
	assert.True(t, matched)
	_, executing := e.ExecutingTag()
	assert.False(t, executing)

	waitIdle(t, e)
	assert.Equal(t, []string{"next"}, log.Items())
	assert.False(t, abandonedDone.Load())

	close(release)
	require.Eventually(t, abandonedDone.Load, 2*time.Second, time.Millisecond)
}

// TestBackgroundExecutor_FaultIsolation verifies a panicking item is reported
// and the worker keeps going
func TestBackgroundExecutor_FaultIsolation(t *testing.T) {
	s, faults := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var ran atomic.Bool

	require.NoError(t, e.SubmitNamed("explode", func(ctx context.Context) { panic("kaboom") }))
	require.NoError(t, e.Submit(func(ctx context.Context) { ran.Store(true) }))
	waitIdle(t, e)

	assert.True(t, ran.Load())
	got := faults.Faults()
	require.Len(t, got, 1)
	assert.Equal(t, "bg", got[0].Source)
	assert.Equal(t, "kaboom", got[0].Value)

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Faults)

	var found bool
	for _, rec := range e.RecentExecutions(0) {
		if rec.Name == "explode" {
			found = true
			assert.True(t, rec.Panicked)
			assert.Equal(t, "bg", rec.Executor)
		}
	}
	assert.True(t, found)
}

// TestBackgroundExecutor_CheckDelay verifies the inter-pass delay
// Given: An executor with a 30ms check delay that has drained its queue
// When: A new item is submitted
// Then: It still runs, within the delay window
func TestBackgroundExecutor_CheckDelay(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, &ExecutorConfig{Name: "delayed", CheckDelay: 30 * time.Millisecond})
	done := make(chan struct{})

	require.NoError(t, e.Submit(func(ctx context.Context) {}))
	waitIdle(t, e)
	require.NoError(t, e.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("item did not run")
	}
}

// TestBackgroundExecutor_Stop verifies Stop cancels in-flight work and
// rejects new work
func TestBackgroundExecutor_Stop(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	started := make(chan struct{})
	var sawCancel atomic.Bool

	require.NoError(t, e.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
	}))
	require.NoError(t, e.Submit(func(ctx context.Context) { t.Error("queued item ran after Stop") }))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.StopAndWait(ctx))
	e.Stop()

	assert.True(t, sawCancel.Load())
	assert.True(t, e.IsClosed())
	assert.Equal(t, 0, e.Pending())
	assert.ErrorIs(t, e.Submit(func(ctx context.Context) {}), ErrExecutorClosed)
	assert.ErrorIs(t, e.WaitIdle(context.Background()), ErrExecutorClosed)
}

// TestBackgroundExecutor_StopRecordsCheckpointAsCancelled verifies an item
// unwound at a Checkpoint by Stop is recorded as cancelled, not as a fault
// Given: A tagged item looping on Checkpoint
// When: The executor is stopped and waited for
// Then: Its history record is cancelled, not panicked, and no fault is reported
func TestBackgroundExecutor_StopRecordsCheckpointAsCancelled(t *testing.T) {
	s, faults := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	started := make(chan struct{})

	require.NoError(t, e.SubmitTagged(func(ctx context.Context) {
		close(started)
		for {
			Checkpoint(ctx)
			time.Sleep(time.Millisecond)
		}
	}, 4))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.StopAndWait(ctx))

	records := e.RecentExecutions(1)
	require.Len(t, records, 1)
	assert.True(t, records[0].Cancelled)
	assert.False(t, records[0].Panicked)
	assert.Empty(t, faults.Faults())
	assert.Equal(t, int64(0), e.Stats().Faults)
}

// TestBackgroundExecutor_StopDoesNotWaitForUncooperativeItem verifies an item
// that ignores its context cannot hold up scheduler shutdown
// Given: An executor whose in-flight item blocks on a channel
// When: The owning scheduler shuts down
// Then: Shutdown returns while the item is still blocked, and StopAndWait
// only returns once it finishes
func TestBackgroundExecutor_StopDoesNotWaitForUncooperativeItem(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, e.Submit(blocker(started, release)))
	<-started

	require.NoError(t, s.Shutdown())
	assert.True(t, e.IsClosed())
	_, executing := e.ExecutingTag()
	assert.False(t, executing)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, e.StopAndWait(short), context.DeadlineExceeded)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.StopAndWait(ctx))
}

// TestBackgroundExecutor_WaitIdleContext verifies WaitIdle honours its
// context
func TestBackgroundExecutor_WaitIdleContext(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)

	require.NoError(t, e.Submit(blocker(started, release)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.WaitIdle(ctx), context.DeadlineExceeded)
}

// TestBackgroundExecutor_ContextCarriesExecutor verifies GetCurrentExecutor
func TestBackgroundExecutor_ContextCarriesExecutor(t *testing.T) {
	s, _ := newTestScheduler(t)
	e := newTestExecutor(t, s, nil)
	var got atomic.Pointer[BackgroundExecutor]

	require.NoError(t, e.Submit(func(ctx context.Context) { got.Store(GetCurrentExecutor(ctx)) }))
	waitIdle(t, e)

	assert.Same(t, e, got.Load())
	assert.Nil(t, GetCurrentExecutor(context.Background()))
}

// TestBackgroundExecutor_Standalone verifies an executor built without a
// scheduler
func TestBackgroundExecutor_Standalone(t *testing.T) {
	e := NewBackgroundExecutor(fixedControl(true), nil)
	defer e.Stop()
	var ran atomic.Bool

	require.NoError(t, e.Submit(func(ctx context.Context) { ran.Store(true) }))
	waitIdle(t, e)

	assert.True(t, ran.Load())
	assert.Equal(t, defaultExecutorName, e.Name())
	assert.NotEmpty(t, e.ID())
}

// TestCheckpoint verifies Checkpoint only unwinds cancelled contexts
func TestCheckpoint(t *testing.T) {
	assert.NotPanics(t, func() { Checkpoint(context.Background()) })

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrExecutionCancelled)
	assert.PanicsWithValue(t, terminateSignal{cause: ErrExecutionCancelled}, func() { Checkpoint(ctx) })
}
