package core

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// callbackGuard runs callbacks with panic isolation, reporting faults and
// durations. Shared by a scheduler's queues and subscribers.
type callbackGuard struct {
	logger  *Logger
	faults  FaultHandler
	metrics Metrics
	count   atomic.Int64
}

func newCallbackGuard(logger *Logger, faults FaultHandler, metrics Metrics) *callbackGuard {
	if faults == nil {
		faults = NewDefaultFaultHandler(logger)
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	return &callbackGuard{logger: logger, faults: faults, metrics: metrics}
}

// run executes task and reports whether it returned normally.
func (g *callbackGuard) run(ctx context.Context, source string, task Task) bool {
	ok, _ := g.runTracked(ctx, source, task)
	return ok
}

// runTracked is run that also reports whether a panic was a termination
// rather than a fault.
func (g *callbackGuard) runTracked(ctx context.Context, source string, task Task) (ok, terminated bool) {
	start := time.Now()
	defer func() {
		g.metrics.RecordCallbackDuration(source, time.Since(start))
		if rec := recover(); rec != nil {
			ok = false
			terminated = g.recovered(ctx, source, rec, debug.Stack())
		}
	}()
	task(ctx)
	return true, false
}

// recovered classifies a recovered panic: termination signals are logged
// at debug level, anything else is a fault. It reports whether rec was a
// termination.
func (g *callbackGuard) recovered(ctx context.Context, source string, rec any, stack []byte) bool {
	if isTermination(ctx, rec) {
		g.logger.Debug().
			Str("source", source).
			Any("cause", context.Cause(ctx)).
			Log("task terminated")
		return true
	}
	g.count.Add(1)
	g.metrics.RecordCallbackFault(source, rec)
	g.faults.HandleFault(ctx, &CallbackFault{Source: source, Value: rec, Stack: stack})
	return false
}

// isTermination reports whether rec unwound a task at a Checkpoint or a task
// cancelled by CancelAll.
func isTermination(ctx context.Context, rec any) bool {
	if _, ok := rec.(terminateSignal); ok {
		return true
	}
	return errors.Is(context.Cause(ctx), ErrExecutionCancelled)
}

// Checkpoint is a cooperative yield point for background work. When ctx was
// cancelled by CancelAll (or the executor stopped), it unwinds the calling
// task; the executor recovers the unwind silently. Outside an executor it
// panics like any other unhandled cancellation, so only call it from tasks.
func Checkpoint(ctx context.Context) {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ctx.Err()
		}
		panic(terminateSignal{cause: cause})
	}
}
