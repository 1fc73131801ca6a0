package framerunner

import (
	"context"

	"github.com/Swind/go-frame-runner/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the framerunner package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// Tag groups background work items for CancelAll.
type Tag = core.Tag

// Phase is a stage of the frame cycle.
type Phase = core.Phase

// Phase constants
const (
	PhasePre    = core.PhasePre
	PhaseMiddle = core.PhaseMiddle
	PhaseLate   = core.PhaseLate
	PhaseEnd    = core.PhaseEnd
)

// FrameScheduler drives the frame cycle on the control goroutine.
type FrameScheduler = core.FrameScheduler

// BackgroundExecutor runs tagged work on a dedicated worker goroutine.
type BackgroundExecutor = core.BackgroundExecutor

// InvocationQueue marshals callbacks onto the control goroutine.
type InvocationQueue = core.InvocationQueue

// Subscription is a persistent phase subscriber.
type Subscription = core.Subscription

// Configuration and handler types
type (
	SchedulerConfig = core.SchedulerConfig
	ExecutorConfig  = core.ExecutorConfig
	FaultHandler    = core.FaultHandler
	Metrics         = core.Metrics
	CallbackFault   = core.CallbackFault
	Logger          = core.Logger
)

// Errors
var (
	ErrNullArgument       = core.ErrNullArgument
	ErrWrongThread        = core.ErrWrongThread
	ErrNotInitialized     = core.ErrNotInitialized
	ErrAlreadyInitialized = core.ErrAlreadyInitialized
	ErrSchedulerClosed    = core.ErrSchedulerClosed
	ErrExecutorClosed     = core.ErrExecutorClosed
	ErrPhaseOrder         = core.ErrPhaseOrder
	ErrExecutionCancelled = core.ErrExecutionCancelled
)

// Convenience functions
var (
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
	DefaultExecutorConfig  = core.DefaultExecutorConfig
	Checkpoint             = core.Checkpoint
	GetCurrentScheduler    = core.GetCurrentScheduler
	GetCurrentExecutor     = core.GetCurrentExecutor
)

// NewFrameScheduler creates a scheduler. Call Init on the goroutine that will
// drive it.
func NewFrameScheduler(config *SchedulerConfig) *FrameScheduler {
	return core.NewFrameScheduler(config)
}

// TaskWithResult and ReplyWithResult for the generic SubmitAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]

type ReplyWithResult[T any] = core.ReplyWithResult[T]

// SubmitAndReplyWithResult runs task on e and posts reply, with the task's
// result, to replyTo.
func SubmitAndReplyWithResult[T any](
	e *BackgroundExecutor,
	task func(ctx context.Context) (T, error),
	reply func(ctx context.Context, result T, err error),
	replyTo core.Invoker,
) error {
	return core.SubmitAndReplyWithResult[T](e, task, reply, replyTo)
}
