package framerunner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Swind/go-frame-runner/core"
)

const defaultFrameInterval = 16 * time.Millisecond

// HostConfig configures a FrameHost.
type HostConfig struct {
	// FrameInterval is the tick period. Defaults to 16ms.
	FrameInterval time.Duration

	// MaxFrames stops the host after that many frames. Zero runs until Stop.
	MaxFrames uint64

	// Scheduler configures the owned scheduler. Nil uses DefaultSchedulerConfig.
	Scheduler *SchedulerConfig
}

// FrameHost owns a control goroutine and ticks a FrameScheduler on it at a
// fixed interval. The goroutine is locked to its OS thread for the host's
// lifetime.
type FrameHost struct {
	interval  time.Duration
	maxFrames uint64
	scheduler *core.FrameScheduler
	logger    *Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
	runningMu sync.RWMutex
}

// NewFrameHost creates a host. The scheduler is initialized by Start.
func NewFrameHost(config *HostConfig) *FrameHost {
	if config == nil {
		config = &HostConfig{}
	}
	schedulerConfig := config.Scheduler
	if schedulerConfig == nil {
		schedulerConfig = core.DefaultSchedulerConfig()
	}
	interval := config.FrameInterval
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	return &FrameHost{
		interval:  interval,
		maxFrames: config.MaxFrames,
		scheduler: core.NewFrameScheduler(schedulerConfig),
		logger:    schedulerConfig.Logger,
		done:      make(chan struct{}),
	}
}

// Scheduler returns the hosted scheduler.
func (h *FrameHost) Scheduler() *FrameScheduler {
	return h.scheduler
}

// Start launches the control goroutine and returns once the scheduler is
// bound to it. The host stops when ctx is cancelled, Stop is called or
// MaxFrames is reached. A host cannot be restarted.
func (h *FrameHost) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return nil
	}
	if h.ctx != nil {
		return core.ErrSchedulerClosed
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	ready := make(chan error, 1)
	go h.controlLoop(ready)
	if err := <-ready; err != nil {
		h.cancel()
		<-h.done
		return err
	}
	h.running = true
	return nil
}

func (h *FrameHost) controlLoop(ready chan<- error) {
	defer close(h.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := h.scheduler.Init(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	defer func() {
		if err := h.scheduler.Shutdown(); err != nil {
			h.logger.Err().Err(err).Log("frame host shutdown failed")
		}
		h.runningMu.Lock()
		h.running = false
		h.runningMu.Unlock()
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		if err := h.scheduler.Tick(); err != nil {
			h.logger.Err().
				Str("scheduler", h.scheduler.Name()).
				Err(err).
				Log("frame tick failed")
			return
		}
		if h.maxFrames > 0 && h.scheduler.FrameCount() >= h.maxFrames {
			h.logger.Info().
				Uint64("frames", h.maxFrames).
				Log("frame limit reached")
			return
		}
	}
}

// Stop ends the control goroutine and waits for the scheduler shutdown.
func (h *FrameHost) Stop() {
	h.runningMu.RLock()
	cancel := h.cancel
	h.runningMu.RUnlock()

	if cancel == nil {
		return
	}
	cancel()
	h.Join()
}

// Join waits for the control goroutine to finish.
func (h *FrameHost) Join() {
	<-h.done
}

// Done is closed when the control goroutine has finished.
func (h *FrameHost) Done() <-chan struct{} {
	return h.done
}

// IsRunning returns whether the control goroutine is ticking.
func (h *FrameHost) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// errHostStopped is returned by RunOnControl when the host stops first.
var errHostStopped = errors.New("framerunner: frame host stopped")

// RunOnControl runs task on the control goroutine during the next Middle
// phase and waits for it. Called on the control goroutine, it runs task
// directly.
func (h *FrameHost) RunOnControl(ctx context.Context, task Task) error {
	if task == nil {
		return core.ErrNullArgument
	}
	if h.scheduler.IsControlThread() {
		task(ctx)
		return nil
	}

	finished := make(chan struct{})
	err := h.scheduler.InvokeInMainThread(func(taskCtx context.Context) {
		defer close(finished)
		task(taskCtx)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		select {
		case <-finished:
			return nil
		default:
			return errHostStopped
		}
	}
}
