package core

import (
	"context"
	"sync/atomic"
)

// InvocationQueue marshals callbacks onto the control goroutine.
//
// It keeps two sub-queues: a plain slice only the control goroutine touches,
// and a synchronized FIFOTaskQueue for every other goroutine. A drain runs
// the control-origin callbacks first, in submission order, then the others
// in FIFO order.
type InvocationQueue struct {
	name    string
	control ControlThread
	guard   *callbackGuard

	fast    []Task // control goroutine only
	fastLen atomic.Int64

	threaded *FIFOTaskQueue
}

// NewInvocationQueue creates a queue bound to control. Faults raised by
// drained callbacks go to the default handler on logger.
func NewInvocationQueue(name string, control ControlThread, logger *Logger) *InvocationQueue {
	return newInvocationQueue(name, control, newCallbackGuard(logger, nil, nil))
}

func newInvocationQueue(name string, control ControlThread, guard *callbackGuard) *InvocationQueue {
	return &InvocationQueue{
		name:     name,
		control:  control,
		guard:    guard,
		threaded: NewFIFOTaskQueue(),
	}
}

// Name returns the queue name, used as the fault source.
func (q *InvocationQueue) Name() string {
	return q.name
}

// Submit enqueues task for the next drain. It never blocks beyond a short
// mutex hold.
func (q *InvocationQueue) Submit(task Task) error {
	if task == nil {
		return ErrNullArgument
	}
	if q.control.IsControlThread() {
		q.fast = append(q.fast, task)
		q.fastLen.Add(1)
		return nil
	}
	q.threaded.Push(TaskItem{Task: task})
	return nil
}

// Len returns the number of callbacks waiting, from any goroutine.
func (q *InvocationQueue) Len() int {
	return int(q.fastLen.Load()) + q.threaded.Len()
}

// DrainAll runs every pending callback and returns how many ran. Must be
// called on the control goroutine.
//
// Control-origin callbacks submitted during the drain run next time. The
// synchronized part is bounded by its length once the control-origin part
// is done, so a callback resubmitting itself from another goroutine cannot
// keep the drain alive.
func (q *InvocationQueue) DrainAll(ctx context.Context) int {
	fast := q.fast
	q.fast = nil
	q.fastLen.Add(-int64(len(fast)))

	executed := 0
	for i, task := range fast {
		fast[i] = nil
		q.guard.run(ctx, q.name, task)
		executed++
	}

	n := q.threaded.Len()
	for _, item := range q.threaded.PopUpTo(n) {
		q.guard.run(ctx, q.name, item.Task)
		executed++
	}

	q.guard.metrics.RecordQueueDepth(q.name, q.Len())
	return executed
}
