package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BackgroundExecutor runs work items one at a time on a dedicated worker
// goroutine, outside the frame cycle.
//
// Submission and CancelAll are restricted to the control goroutine. Every
// item runs with its own context; CancelAll cancels the context of a
// matching in-flight item with cause ErrExecutionCancelled and hands the
// rest of the queue to a fresh worker, so the cancelled callback can unwind
// at its next Checkpoint (or simply return) without holding up later work.
// A callback that ignores its context keeps running on the abandoned
// goroutine until it returns, but nothing it does afterwards is observed by
// the executor.
type BackgroundExecutor struct {
	id         string
	name       string
	control    ControlThread
	logger     *Logger
	guard      *callbackGuard
	checkDelay time.Duration
	history    *executionHistory

	queue  *FIFOTaskQueue
	signal chan struct{}

	// execMu serializes pop-and-publish of the in-flight item with CancelAll.
	// Never held while a callback runs.
	execMu     sync.Mutex
	executing  atomic.Pointer[workItem]
	cancelling atomic.Pointer[Tag]
	generation atomic.Uint64
	workerDone chan struct{} // guarded by execMu

	// stoppedDone is the worker running when Stop was called; guarded by execMu.
	stoppedDone chan struct{}

	started  atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	executed  atomic.Int64
	cancelled atomic.Int64
}

// workItem is a TaskItem being executed.
type workItem struct {
	TaskItem
	id        string
	ctx       context.Context
	cancel    context.CancelCauseFunc
	startedAt time.Time
}

// NewBackgroundExecutor creates an executor whose submissions are restricted
// to control. The worker starts on first submission. A nil config uses
// DefaultExecutorConfig.
func NewBackgroundExecutor(control ControlThread, config *ExecutorConfig) *BackgroundExecutor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	name := config.Name
	if name == "" {
		name = defaultExecutorName
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &BackgroundExecutor{
		id:         uuid.New().String(),
		name:       name,
		control:    control,
		logger:     config.Logger,
		guard:      newCallbackGuard(config.Logger, config.FaultHandler, config.Metrics),
		checkDelay: config.CheckDelay,
		history:    newExecutionHistory(config.HistoryCapacity),
		queue:      NewFIFOTaskQueue(),
		signal:     make(chan struct{}, 1),
		cancel:     cancel,
	}
	e.ctx = context.WithValue(ctx, executorKey, e)
	return e
}

// ID returns the unique id of the executor.
func (e *BackgroundExecutor) ID() string { return e.id }

// Name returns the configured name.
func (e *BackgroundExecutor) Name() string { return e.name }

// =============================================================================
// Submission
// =============================================================================

// Submit enqueues an untagged work item. Untagged items never match
// CancelAll.
func (e *BackgroundExecutor) Submit(task Task) error {
	return e.submit(TaskItem{Task: task})
}

// SubmitTagged enqueues a work item carrying tag.
func (e *BackgroundExecutor) SubmitTagged(task Task, tag Tag) error {
	return e.submit(TaskItem{Task: task, Tag: tag, Tagged: true})
}

// SubmitNamed enqueues a work item with an explicit name for the execution
// history.
func (e *BackgroundExecutor) SubmitNamed(name string, task Task) error {
	return e.submit(TaskItem{Task: task, Name: name})
}

func (e *BackgroundExecutor) submit(item TaskItem) error {
	if !e.control.IsControlThread() {
		return ErrWrongThread
	}
	if item.Task == nil {
		return ErrNullArgument
	}
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	e.enqueue(item)
	return nil
}

// enqueue skips the control goroutine check; used for internal barriers.
func (e *BackgroundExecutor) enqueue(item TaskItem) {
	e.queue.Push(item)
	if e.started.CompareAndSwap(false, true) {
		e.execMu.Lock()
		e.startWorkerLocked()
		e.execMu.Unlock()
	}
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// =============================================================================
// Cancellation
// =============================================================================

// CancelAll drops every queued item carrying tag and cancels a matching
// in-flight item, replacing the worker so the remaining queue keeps
// draining. Items with other tags keep their order. It reports whether any
// item matched.
//
// Cancellation of the in-flight item is cooperative: its context is
// cancelled with cause ErrExecutionCancelled; see Checkpoint.
func (e *BackgroundExecutor) CancelAll(tag Tag) (bool, error) {
	if !e.control.IsControlThread() {
		return false, ErrWrongThread
	}

	e.cancelling.Store(&tag)
	defer e.cancelling.Store(nil)

	e.execMu.Lock()
	defer e.execMu.Unlock()

	matched := 0
	if w := e.executing.Load(); w != nil && w.matches(tag) {
		w.cancel(ErrExecutionCancelled)
		e.executing.Store(nil)
		matched++
		e.startWorkerLocked()
	}
	matched += len(e.queue.RemoveIf(func(item TaskItem) bool {
		return item.matches(tag)
	}))

	if matched == 0 {
		return false, nil
	}
	e.cancelled.Add(int64(matched))
	e.guard.metrics.RecordCancelled(e.name, matched)
	e.logger.Debug().
		Str("executor", e.name).
		Int64("tag", int64(tag)).
		Int("matched", matched).
		Log("cancelled work items")
	return true, nil
}

// ExecutingTag returns the tag of the in-flight item, if it has one.
func (e *BackgroundExecutor) ExecutingTag() (Tag, bool) {
	w := e.executing.Load()
	if w == nil || !w.Tagged {
		return 0, false
	}
	return w.Tag, true
}

// =============================================================================
// Worker
// =============================================================================

// startWorkerLocked supersedes the current worker, if any, with a new one.
func (e *BackgroundExecutor) startWorkerLocked() {
	gen := e.generation.Add(1)
	done := make(chan struct{})
	e.workerDone = done
	go e.worker(gen, done)
}

func (e *BackgroundExecutor) worker(gen uint64, done chan struct{}) {
	defer close(done)

	for e.ctx.Err() == nil {
		w, ok := e.next(gen)
		if ok {
			e.execute(w)
			if !e.finish(gen, w) {
				return
			}
			continue
		}
		if e.generation.Load() != gen {
			return
		}
		if !e.idle() {
			return
		}
	}
}

// idle waits after the queue ran empty. It returns false once the executor
// stops.
func (e *BackgroundExecutor) idle() bool {
	if e.checkDelay > 0 {
		timer := time.NewTimer(e.checkDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true
		case <-e.ctx.Done():
			return false
		}
	}
	select {
	case <-e.signal:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// next pops the next runnable item and publishes it as in flight. Items
// matching a cancellation in progress are skipped.
func (e *BackgroundExecutor) next(gen uint64) (*workItem, bool) {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	if e.generation.Load() != gen {
		return nil, false
	}
	for {
		item, ok := e.queue.Pop()
		if !ok {
			return nil, false
		}
		if tag := e.cancelling.Load(); tag != nil && item.matches(*tag) {
			e.cancelled.Add(1)
			e.guard.metrics.RecordCancelled(e.name, 1)
			continue
		}
		ctx, cancel := context.WithCancelCause(e.ctx)
		w := &workItem{
			TaskItem: item,
			id:       uuid.New().String(),
			ctx:      ctx,
			cancel:   cancel,
		}
		e.executing.Store(w)
		return w, true
	}
}

func (e *BackgroundExecutor) execute(w *workItem) {
	w.startedAt = time.Now()
	ok, terminated := e.guard.runTracked(w.ctx, e.name, w.Task)
	finishedAt := time.Now()

	cancelled := terminated || errors.Is(context.Cause(w.ctx), ErrExecutionCancelled)
	e.executed.Add(1)
	e.history.Add(ExecutionRecord{
		ID:         w.id,
		Name:       resolveTaskName(w.Task, w.Name),
		Executor:   e.name,
		Tag:        w.Tag,
		Tagged:     w.Tagged,
		StartedAt:  w.startedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(w.startedAt),
		Panicked:   !ok && !terminated,
		Cancelled:  cancelled,
	})
}

// finish clears the in-flight item. It returns false when the worker was
// superseded while the item ran.
func (e *BackgroundExecutor) finish(gen uint64, w *workItem) bool {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	w.cancel(nil)
	if e.generation.Load() != gen {
		return false
	}
	e.executing.Store(nil)
	return true
}

// =============================================================================
// Lifecycle and observability
// =============================================================================

// Stop cancels the in-flight item, drops the queue and rejects further
// submissions. Like CancelAll it abandons the worker instead of waiting for
// it, so a callback that ignores its context cannot block the caller; use
// StopAndWait to wait. Calling it again is a no-op.
func (e *BackgroundExecutor) Stop() {
	e.stopOnce.Do(func() {
		e.closed.Store(true)
		e.cancel()

		e.execMu.Lock()
		e.stoppedDone = e.workerDone
		e.generation.Add(1)
		e.executing.Store(nil)
		e.execMu.Unlock()
		e.queue.Clear()

		e.logger.Debug().
			Str("executor", e.name).
			Int64("executed", e.executed.Load()).
			Log("background executor stopped")
	})
}

// StopAndWait stops the executor and waits for the worker running at the
// time of the stop to return, or for ctx to be done. It must not be called
// from a task of this executor.
func (e *BackgroundExecutor) StopAndWait(ctx context.Context) error {
	e.Stop()

	e.execMu.Lock()
	done := e.stoppedDone
	e.execMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed reports whether Stop has been called.
func (e *BackgroundExecutor) IsClosed() bool {
	return e.closed.Load()
}

// Pending returns the number of queued items, excluding the in-flight one.
func (e *BackgroundExecutor) Pending() int {
	return e.queue.Len()
}

// WaitIdle blocks until every item queued before the call has finished, or
// ctx is done. It may be called from any goroutine except the worker.
func (e *BackgroundExecutor) WaitIdle(ctx context.Context) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	done := make(chan struct{})
	e.enqueue(TaskItem{Name: "barrier", Task: func(context.Context) { close(done) }})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecentExecutions returns up to limit finished items, newest first.
func (e *BackgroundExecutor) RecentExecutions(limit int) []ExecutionRecord {
	return e.history.Recent(limit)
}

// Stats returns a snapshot of the executor state.
func (e *BackgroundExecutor) Stats() ExecutorStats {
	stats := ExecutorStats{
		ID:         e.id,
		Name:       e.name,
		Pending:    e.queue.Len(),
		Generation: e.generation.Load(),
		Executed:   e.executed.Load(),
		Faults:     e.guard.count.Load(),
		Cancelled:  e.cancelled.Load(),
		Closed:     e.closed.Load(),
	}
	if w := e.executing.Load(); w != nil {
		stats.Running = true
		stats.ExecutingTag = w.Tag
		stats.Tagged = w.Tagged
	}
	if last, ok := e.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}
