package core

import "context"

// Task is the unit of work (Closure)
//
// Tasks drained by a FrameScheduler receive a context carrying the scheduler
// (see GetCurrentScheduler). Tasks run by a BackgroundExecutor receive a
// context that is cancelled when CancelAll targets the task's tag.
type Task func(ctx context.Context)

// Tag groups background work items for bulk cancellation.
type Tag int64

// Invoker accepts a task for later execution.
// InvocationQueue implements it; replies of SubmitAndReply are routed through it.
type Invoker interface {
	Submit(task Task) error
}

// =============================================================================
// Context Helper
// =============================================================================
type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// GetCurrentScheduler returns the scheduler draining the current task, or nil.
func GetCurrentScheduler(ctx context.Context) *FrameScheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*FrameScheduler)
	}
	return nil
}

type executorKeyType struct{}

var executorKey executorKeyType

// GetCurrentExecutor returns the executor running the current task, or nil.
func GetCurrentExecutor(ctx context.Context) *BackgroundExecutor {
	if v := ctx.Value(executorKey); v != nil {
		return v.(*BackgroundExecutor)
	}
	return nil
}
