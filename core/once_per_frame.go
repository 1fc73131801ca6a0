package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Swind/go-frame-runner/random"
)

// OncePerFrame returns a function that schedules task on the end-frame
// queue. Calls made while a run is already pending are coalesced, so task
// runs at most once per frame however often the function is called, from
// any goroutine.
func (s *FrameScheduler) OncePerFrame(task Task) (func() error, error) {
	if task == nil {
		return nil, ErrNullArgument
	}

	var pending atomic.Bool
	run := func(ctx context.Context) {
		defer pending.Store(false)
		task(ctx)
	}
	return func() error {
		if !pending.CompareAndSwap(false, true) {
			return nil
		}
		if err := s.InvokeEndFrame(run); err != nil {
			pending.Store(false)
			return err
		}
		return nil
	}, nil
}

// AfterRandomDelayOnce returns a function that schedules task after a delay
// drawn from [0, maxDelay) using src (random.Default when nil), as
// InvokeAfterRandomDelay does. Calls made while a run is pending are ignored,
// so at most one run is outstanding at a time.
func (s *FrameScheduler) AfterRandomDelayOnce(task Task, maxDelay time.Duration, src *random.Source) (func() error, error) {
	if task == nil {
		return nil, ErrNullArgument
	}

	var pending atomic.Bool
	run := func(ctx context.Context) {
		defer pending.Store(false)
		task(ctx)
	}
	return func() error {
		if !pending.CompareAndSwap(false, true) {
			return nil
		}
		if err := s.InvokeAfterRandomDelay(run, maxDelay, src); err != nil {
			pending.Store(false)
			return err
		}
		return nil
	}, nil
}
