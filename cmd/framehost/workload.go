package main

import (
	"context"
	"time"

	"github.com/Swind/go-frame-runner/core"
	"github.com/Swind/go-frame-runner/random"
)

const (
	tagRoutine     core.Tag = 1
	tagSpeculative core.Tag = 2

	// speculativeEvery makes every Nth job speculative; the next job frame
	// cancels whatever speculative work is still queued or running.
	speculativeEvery = 3
)

// workload submits simulated background jobs from the Late phase and
// collects their replies at the end of the frame. Counters are owned by the
// control goroutine.
type workload struct {
	scheduler *core.FrameScheduler
	executor  *core.BackgroundExecutor
	logger    *core.Logger
	every     uint64

	submitted int
	replied   int
	cancels   int
}

type workloadSummary struct {
	Submitted int
	Replied   int
	Cancels   int
	Stats     core.ExecutorStats
}

// newWorkload must be called on the scheduler's control goroutine.
func newWorkload(s *core.FrameScheduler, config *core.ExecutorConfig, every int, logger *core.Logger) (*workload, error) {
	executor, err := s.NewBackgroundExecutor(config)
	if err != nil {
		return nil, err
	}
	w := &workload{
		scheduler: s,
		executor:  executor,
		logger:    logger,
		every:     uint64(every),
	}
	if _, err := s.Subscribe(core.PhaseLate, w.onLate); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *workload) onLate(ctx context.Context) {
	if w.scheduler.FrameCount()%w.every != 0 {
		return
	}

	if w.submitted%speculativeEvery == 0 && w.submitted > 0 {
		matched, err := w.executor.CancelAll(tagSpeculative)
		if err != nil {
			w.logger.Warning().Err(err).Log("cancel speculative jobs failed")
		} else if matched {
			w.cancels++
		}
	}

	tag := tagRoutine
	if w.submitted%speculativeEvery == speculativeEvery-1 {
		tag = tagSpeculative
	}
	err := w.executor.SubmitTaggedAndReply(simulatedJob, tag, func(ctx context.Context) {
		w.replied++
	}, w.scheduler.EndFrameQueue())
	if err != nil {
		w.logger.Warning().Err(err).Log("submit job failed")
		return
	}
	w.submitted++
}

// simulatedJob sleeps for a few random milliseconds in cancellable steps.
func simulatedJob(ctx context.Context) {
	steps, _ := random.NextInt(1, 5)
	for range steps {
		core.Checkpoint(ctx)
		time.Sleep(time.Millisecond)
	}
}

// summary must be called on the control goroutine or after it has exited.
func (w *workload) summary() workloadSummary {
	return workloadSummary{
		Submitted: w.submitted,
		Replied:   w.replied,
		Cancels:   w.cancels,
		Stats:     w.executor.Stats(),
	}
}
