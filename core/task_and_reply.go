package core

import "context"

// TaskWithResult is a background task producing a value.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the value of a TaskWithResult on the reply queue.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// Task and Reply
// =============================================================================

// SubmitAndReply runs task on the executor, then submits reply to replyTo
// (typically FrameScheduler.NextFrameQueue, so the reply runs on the control
// goroutine). The reply is skipped if task panics or was cancelled. A nil
// replyTo submits task alone.
func (e *BackgroundExecutor) SubmitAndReply(task Task, reply Task, replyTo Invoker) error {
	return e.submitAndReply(TaskItem{Task: task}, reply, replyTo)
}

// SubmitTaggedAndReply is SubmitAndReply with a cancellation tag on task.
func (e *BackgroundExecutor) SubmitTaggedAndReply(task Task, tag Tag, reply Task, replyTo Invoker) error {
	return e.submitAndReply(TaskItem{Task: task, Tag: tag, Tagged: true}, reply, replyTo)
}

func (e *BackgroundExecutor) submitAndReply(item TaskItem, reply Task, replyTo Invoker) error {
	if item.Task == nil || (replyTo != nil && reply == nil) {
		return ErrNullArgument
	}
	if replyTo == nil {
		return e.submit(item)
	}

	task := item.Task
	item.Name = resolveTaskName(task, "")
	item.Task = func(ctx context.Context) {
		// A panic unwinds past the submission and is reported by the worker.
		task(ctx)
		if ctx.Err() != nil {
			return
		}
		if err := replyTo.Submit(reply); err != nil {
			e.logger.Warning().
				Str("executor", e.name).
				Err(err).
				Log("reply dropped")
		}
	}
	return e.submit(item)
}

// =============================================================================
// Generic Task and Reply with Result
// =============================================================================

// SubmitAndReplyWithResult runs task on e and passes its result to reply,
// submitted to replyTo.
//
// The captured result is written by the task before the reply is
// submitted, and the queue hand-off orders that write before the reply
// reads it.
//
// Example:
//
//	SubmitAndReplyWithResult(
//	    executor,
//	    func(ctx context.Context) (int, error) {
//	        return computeNavMesh(ctx)
//	    },
//	    func(ctx context.Context, cells int, err error) {
//	        applyNavMesh(cells)
//	    },
//	    scheduler.NextFrameQueue(),
//	)
func SubmitAndReplyWithResult[T any](
	e *BackgroundExecutor,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyTo Invoker,
) error {
	if task == nil || reply == nil || replyTo == nil {
		return ErrNullArgument
	}

	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}
	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	return e.SubmitAndReply(wrappedTask, wrappedReply, replyTo)
}
