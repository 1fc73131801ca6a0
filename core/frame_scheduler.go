package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-frame-runner/random"
)

// FrameScheduler drives the frame cycle on one control goroutine.
//
// Once per frame the host calls Tick (or the four AdvanceTo* methods in
// order). Each transition stores the new phase, drains the queue bound to
// it, runs the persistent subscribers of the phase and then the one-shot
// subscribers registered before they started:
//
//	Pre    before-frame queue
//	Middle next-frame queue, then the main-thread queue
//	Late   no queue
//	End    end-frame queue
//
// Submission and subscription work from any goroutine. Phase advancement,
// Shutdown and BackgroundExecutor submission are restricted to the control
// goroutine bound by Init.
type FrameScheduler struct {
	id     string
	name   string
	logger *Logger

	control controlBinding
	phase   phaseHolder
	frame   atomic.Uint64
	closed  atomic.Bool

	beforeFrame *InvocationQueue
	nextFrame   *InvocationQueue
	mainThread  *InvocationQueue
	endFrame    *InvocationQueue

	subMu      sync.Mutex
	persistent [phaseCount][]*Subscription
	once       [phaseCount][]Task
	onShutdown []Task

	delay   *DelayManager
	guard   *callbackGuard
	metrics Metrics

	ctx context.Context
}

// NewFrameScheduler creates a scheduler. Call Init on the goroutine that will
// drive it. A nil config uses DefaultSchedulerConfig.
func NewFrameScheduler(config *SchedulerConfig) *FrameScheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	name := config.Name
	if name == "" {
		name = "frame"
	}

	s := &FrameScheduler{
		id:     uuid.New().String(),
		name:   name,
		logger: config.Logger,
	}
	s.guard = newCallbackGuard(config.Logger, config.FaultHandler, config.Metrics)
	s.metrics = s.guard.metrics
	s.ctx = context.WithValue(context.Background(), schedulerKey, s)
	s.phase.Store(PhaseEnd)

	s.beforeFrame = newInvocationQueue(name+".before_frame", s, s.guard)
	s.nextFrame = newInvocationQueue(name+".next_frame", s, s.guard)
	s.mainThread = newInvocationQueue(name+".main_thread", s, s.guard)
	s.endFrame = newInvocationQueue(name+".end_frame", s, s.guard)

	s.delay = NewDelayManager(func(err error) {
		s.logger.Warning().
			Str("scheduler", s.name).
			Err(err).
			Log("delayed task dropped")
	})

	// The main-thread queue is the first persistent Middle subscriber.
	s.persistent[PhaseMiddle] = append(s.persistent[PhaseMiddle], &Subscription{
		scheduler: s,
		phase:     PhaseMiddle,
		task:      func(ctx context.Context) { s.mainThread.DrainAll(ctx) },
		internal:  true,
	})
	s.persistent[PhaseMiddle][0].active.Store(true)

	return s
}

// ID returns the unique id of the scheduler.
func (s *FrameScheduler) ID() string { return s.id }

// Name returns the configured name.
func (s *FrameScheduler) Name() string { return s.name }

// =============================================================================
// Lifecycle
// =============================================================================

// Init binds the calling goroutine as the control goroutine.
func (s *FrameScheduler) Init() error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	if !s.control.bind() {
		return ErrAlreadyInitialized
	}
	s.logger.Info().
		Str("scheduler", s.name).
		Str("id", s.id).
		Log("frame scheduler initialized")
	return nil
}

// Shutdown runs the OnShutdown hooks in registration order, stops delayed
// delivery and rejects further submissions. Queued callbacks are dropped.
// Executors created by NewBackgroundExecutor are stopped without waiting for
// their in-flight callbacks. Calling it again is a no-op.
func (s *FrameScheduler) Shutdown() error {
	if err := s.checkControl(); err != nil {
		return err
	}
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.subMu.Lock()
	hooks := s.onShutdown
	s.onShutdown = nil
	s.subMu.Unlock()

	for _, hook := range hooks {
		s.guard.run(s.ctx, s.name+".shutdown", hook)
	}
	s.delay.Stop()

	s.logger.Info().
		Str("scheduler", s.name).
		Uint64("frames", s.frame.Load()).
		Log("frame scheduler shut down")
	return nil
}

// IsClosed reports whether Shutdown has run.
func (s *FrameScheduler) IsClosed() bool {
	return s.closed.Load()
}

// IsControlThread reports whether the caller is the control goroutine.
func (s *FrameScheduler) IsControlThread() bool {
	return s.control.isCurrent()
}

func (s *FrameScheduler) checkControl() error {
	if !s.control.bound() {
		return ErrNotInitialized
	}
	if !s.control.isCurrent() {
		return ErrWrongThread
	}
	return nil
}

// =============================================================================
// Phase cycle
// =============================================================================

// CurrentPhase returns the last phase entered. Safe from any goroutine.
func (s *FrameScheduler) CurrentPhase() Phase {
	return s.phase.Load()
}

// FrameCount returns the number of frames started (Pre transitions).
func (s *FrameScheduler) FrameCount() uint64 {
	return s.frame.Load()
}

// AdvanceToPre starts a frame and drains the before-frame queue.
func (s *FrameScheduler) AdvanceToPre() error { return s.advance(PhasePre) }

// AdvanceToMiddle drains the next-frame queue, then the main-thread queue.
func (s *FrameScheduler) AdvanceToMiddle() error { return s.advance(PhaseMiddle) }

// AdvanceToLate drains nothing; only subscribers run.
func (s *FrameScheduler) AdvanceToLate() error { return s.advance(PhaseLate) }

// AdvanceToEnd drains the end-frame queue.
func (s *FrameScheduler) AdvanceToEnd() error { return s.advance(PhaseEnd) }

// Tick runs one full frame, stopping at the first error.
func (s *FrameScheduler) Tick() error {
	for _, p := range [...]Phase{PhasePre, PhaseMiddle, PhaseLate, PhaseEnd} {
		if err := s.advance(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *FrameScheduler) advance(target Phase) error {
	if err := s.checkControl(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	if current := s.phase.Load(); current.Next() != target {
		return fmt.Errorf("%w: %s after %s", ErrPhaseOrder, target, current)
	}

	start := time.Now()
	s.phase.Store(target)
	if target == PhasePre {
		s.frame.Add(1)
	}

	if q := s.queueFor(target); q != nil {
		q.DrainAll(s.ctx)
	}
	s.notify(target)

	s.metrics.RecordPhase(s.name, target, time.Since(start))
	return nil
}

func (s *FrameScheduler) queueFor(p Phase) *InvocationQueue {
	switch p {
	case PhasePre:
		return s.beforeFrame
	case PhaseMiddle:
		return s.nextFrame
	case PhaseEnd:
		return s.endFrame
	default:
		return nil
	}
}

// notify runs the persistent subscribers of p, then the one-shot ones. The
// one-shot list is taken and cleared before any of them runs, so a one-shot
// subscriber that subscribes again fires next cycle.
func (s *FrameScheduler) notify(p Phase) {
	s.subMu.Lock()
	persistent := slices.Clone(s.persistent[p])
	s.subMu.Unlock()

	source := s.name + ".subscriber." + p.String()
	for _, sub := range persistent {
		if sub.active.Load() {
			s.guard.run(s.ctx, source, sub.task)
		}
	}

	s.subMu.Lock()
	once := s.once[p]
	s.once[p] = nil
	s.subMu.Unlock()

	for _, task := range once {
		s.guard.run(s.ctx, source, task)
	}
}

// =============================================================================
// Submission
// =============================================================================

// InvokeBeforeFrame runs task during the next Pre transition.
func (s *FrameScheduler) InvokeBeforeFrame(task Task) error {
	return s.submit(s.beforeFrame, task)
}

// InvokeNextFrame runs task during the next Middle transition.
func (s *FrameScheduler) InvokeNextFrame(task Task) error {
	return s.submit(s.nextFrame, task)
}

// InvokeEndFrame runs task during the next End transition.
func (s *FrameScheduler) InvokeEndFrame(task Task) error {
	return s.submit(s.endFrame, task)
}

// InvokeInMainThread runs task on the control goroutine during the next
// Middle transition, after the next-frame queue.
func (s *FrameScheduler) InvokeInMainThread(task Task) error {
	return s.submit(s.mainThread, task)
}

func (s *FrameScheduler) submit(q *InvocationQueue, task Task) error {
	if task == nil {
		return ErrNullArgument
	}
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	return q.Submit(task)
}

// InvokeDelayed puts task in the next-frame queue once delay has elapsed.
// A non-positive delay submits immediately.
func (s *FrameScheduler) InvokeDelayed(task Task, delay time.Duration) error {
	if task == nil {
		return ErrNullArgument
	}
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	if delay <= 0 {
		return s.nextFrame.Submit(task)
	}
	s.delay.AddDelayedTask(task, delay, InvokerFunc(s.InvokeNextFrame))
	return nil
}

// InvokeAfterRandomDelay is InvokeDelayed with a delay drawn uniformly from
// [0, maxDelay) using src (random.Default when nil).
func (s *FrameScheduler) InvokeAfterRandomDelay(task Task, maxDelay time.Duration, src *random.Source) error {
	delay, err := randomDelay(maxDelay, src)
	if err != nil {
		return err
	}
	return s.InvokeDelayed(task, delay)
}

// randomDelay draws from [0, maxDelay). A generator materialized only for
// this draw is released again, so callers on short-lived goroutines do not
// grow src.
func randomDelay(maxDelay time.Duration, src *random.Source) (time.Duration, error) {
	if maxDelay <= 0 {
		return 0, nil
	}
	if src == nil {
		src = random.Default
	}
	if !src.HasStream() {
		defer src.Release()
	}
	n, err := src.NextInt(0, int(maxDelay))
	if err != nil {
		return 0, err
	}
	return time.Duration(n), nil
}

// BeforeFrameQueue returns the queue drained on Pre.
func (s *FrameScheduler) BeforeFrameQueue() *InvocationQueue { return s.beforeFrame }

// NextFrameQueue returns the queue drained on Middle.
func (s *FrameScheduler) NextFrameQueue() *InvocationQueue { return s.nextFrame }

// MainThreadQueue returns the queue drained on Middle after NextFrameQueue.
func (s *FrameScheduler) MainThreadQueue() *InvocationQueue { return s.mainThread }

// EndFrameQueue returns the queue drained on End.
func (s *FrameScheduler) EndFrameQueue() *InvocationQueue { return s.endFrame }

// =============================================================================
// Subscriptions
// =============================================================================

// Subscription is a persistent phase subscriber.
type Subscription struct {
	scheduler *FrameScheduler
	phase     Phase
	task      Task
	active    atomic.Bool
	internal  bool
}

// Phase returns the phase the subscription fires on.
func (sub *Subscription) Phase() Phase { return sub.phase }

// Unsubscribe removes the subscriber. A subscriber removed while its phase
// is running does not fire again, even later in the same phase.
func (sub *Subscription) Unsubscribe() {
	if !sub.active.CompareAndSwap(true, false) {
		return
	}
	s := sub.scheduler
	s.subMu.Lock()
	defer s.subMu.Unlock()
	list := s.persistent[sub.phase]
	if i := slices.Index(list, sub); i >= 0 {
		s.persistent[sub.phase] = slices.Delete(list, i, i+1)
	}
}

// Subscribe registers task to run on every transition into phase.
func (s *FrameScheduler) Subscribe(phase Phase, task Task) (*Subscription, error) {
	if err := s.checkSubscription(phase, task); err != nil {
		return nil, err
	}
	sub := &Subscription{scheduler: s, phase: phase, task: task}
	sub.active.Store(true)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.persistent[phase] = append(s.persistent[phase], sub)
	return sub, nil
}

// SubscribeOnce registers task to run on the next transition into phase
// that starts its one-shot pass after this call.
func (s *FrameScheduler) SubscribeOnce(phase Phase, task Task) error {
	if err := s.checkSubscription(phase, task); err != nil {
		return err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.once[phase] = append(s.once[phase], task)
	return nil
}

// OnShutdown registers task to run during Shutdown.
func (s *FrameScheduler) OnShutdown(task Task) error {
	if task == nil {
		return ErrNullArgument
	}
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.onShutdown = append(s.onShutdown, task)
	return nil
}

func (s *FrameScheduler) checkSubscription(phase Phase, task Task) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPhase, int32(phase))
	}
	if task == nil {
		return ErrNullArgument
	}
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	return nil
}

// =============================================================================
// Executors and stats
// =============================================================================

// NewBackgroundExecutor creates an executor owned by this scheduler. Nil
// handlers in config are inherited from the scheduler, and the executor is
// stopped by Shutdown.
func (s *FrameScheduler) NewBackgroundExecutor(config *ExecutorConfig) (*BackgroundExecutor, error) {
	if s.closed.Load() {
		return nil, ErrSchedulerClosed
	}
	cfg := DefaultExecutorConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	if cfg.FaultHandler == nil {
		cfg.FaultHandler = s.guard.faults
	}
	if cfg.Metrics == nil {
		cfg.Metrics = s.metrics
	}

	e := NewBackgroundExecutor(s, cfg)
	if err := s.OnShutdown(func(ctx context.Context) { e.Stop() }); err != nil {
		e.Stop()
		return nil, err
	}
	return e, nil
}

// Stats returns a snapshot of the scheduler state.
func (s *FrameScheduler) Stats() SchedulerStats {
	s.subMu.Lock()
	subscribers := 0
	for p := range s.persistent {
		for _, sub := range s.persistent[p] {
			if !sub.internal {
				subscribers++
			}
		}
		subscribers += len(s.once[p])
	}
	s.subMu.Unlock()

	queues := []*InvocationQueue{s.beforeFrame, s.nextFrame, s.mainThread, s.endFrame}
	stats := SchedulerStats{
		ID:          s.id,
		Name:        s.name,
		Phase:       s.phase.Load(),
		Frame:       s.frame.Load(),
		Queues:      make([]QueueStats, 0, len(queues)),
		Subscribers: subscribers,
		Faults:      s.guard.count.Load(),
		Delayed:     s.delay.TaskCount(),
		Initialized: s.control.bound(),
		Closed:      s.closed.Load(),
	}
	for _, q := range queues {
		stats.Queues = append(stats.Queues, QueueStats{Name: q.Name(), Pending: q.Len()})
	}
	return stats
}

// InvokerFunc adapts a submit function to Invoker.
type InvokerFunc func(task Task) error

// Submit calls f(task).
func (f InvokerFunc) Submit(task Task) error { return f(task) }
