package core

import (
	"context"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// =============================================================================
// FaultHandler: Interface for handling callback faults
// =============================================================================

// FaultHandler is called when a task panics during a phase drain or a
// background worker pass. The drain continues after the handler returns.
//
// Implementations should be thread-safe as they may be called concurrently
// (a scheduler and its executors report from different goroutines).
type FaultHandler interface {
	// HandleFault is called with the recovered fault.
	//
	// Parameters:
	// - ctx: The context the task ran with
	// - fault: The recovered panic value, its stack, and the source queue name
	HandleFault(ctx context.Context, fault *CallbackFault)
}

// DefaultFaultHandler logs faults at error level, rate limited per source so
// a callback that panics every frame does not flood the log.
type DefaultFaultHandler struct {
	logger  *Logger
	limiter *catrate.Limiter
}

// defaultFaultRates allows bursts of 5 faults per second, 60 per minute, per
// source.
var defaultFaultRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// NewDefaultFaultHandler returns a handler writing to logger. A nil logger
// drops every fault.
func NewDefaultFaultHandler(logger *Logger) *DefaultFaultHandler {
	return &DefaultFaultHandler{
		logger:  logger,
		limiter: catrate.NewLimiter(defaultFaultRates),
	}
}

// HandleFault logs the fault.
func (h *DefaultFaultHandler) HandleFault(ctx context.Context, fault *CallbackFault) {
	if h == nil || h.logger == nil || fault == nil {
		return
	}
	if _, ok := h.limiter.Allow(fault.Source); !ok {
		return
	}
	h.logger.Err().
		Str("source", fault.Source).
		Any("panic", fault.Value).
		Str("stack", string(fault.Stack)).
		Log("unhandled callback fault")
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler and executor
// metrics. Implementations can send metrics to monitoring systems
// (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called on the control
// goroutine between callbacks.
type Metrics interface {
	// RecordCallbackDuration records how long one callback took.
	//
	// Parameters:
	// - source: The queue or executor name
	// - duration: How long the callback ran
	RecordCallbackDuration(source string, duration time.Duration)

	// RecordCallbackFault records that a callback panicked.
	RecordCallbackFault(source string, panicInfo any)

	// RecordQueueDepth records the number of callbacks waiting in a queue.
	RecordQueueDepth(source string, depth int)

	// RecordCancelled records work items dropped by CancelAll, including an
	// in-flight item.
	RecordCancelled(source string, count int)

	// RecordPhase records how long one phase transition took, drains and
	// subscribers included.
	RecordPhase(scheduler string, phase Phase, duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordCallbackDuration is a no-op.
func (m *NilMetrics) RecordCallbackDuration(source string, duration time.Duration) {}

// RecordCallbackFault is a no-op.
func (m *NilMetrics) RecordCallbackFault(source string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(source string, depth int) {}

// RecordCancelled is a no-op.
func (m *NilMetrics) RecordCancelled(source string, count int) {}

// RecordPhase is a no-op.
func (m *NilMetrics) RecordPhase(scheduler string, phase Phase, duration time.Duration) {}

// =============================================================================
// SchedulerConfig: Configuration for FrameScheduler
// =============================================================================

// SchedulerConfig holds configuration options for FrameScheduler.
// Handlers are optional; nil FaultHandler and Metrics fall back to the
// defaults. A nil Logger disables logging.
type SchedulerConfig struct {
	// Name prefixes the names of the scheduler's queues. Defaults to "frame".
	Name string

	// Logger receives lifecycle and fault logs.
	Logger *Logger

	// FaultHandler is called when a callback panics. Defaults to a
	// DefaultFaultHandler on Logger.
	FaultHandler FaultHandler

	// Metrics is called to record callback and phase metrics. Defaults to NilMetrics.
	Metrics Metrics
}

// DefaultSchedulerConfig returns a config with default handlers and a
// stderr logger.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewDefaultLogger(nil, LevelInformational)
	return &SchedulerConfig{
		Name:         "frame",
		Logger:       logger,
		FaultHandler: NewDefaultFaultHandler(logger),
		Metrics:      &NilMetrics{},
	}
}

// =============================================================================
// ExecutorConfig: Configuration for BackgroundExecutor
// =============================================================================

const defaultExecutorName = "background"

// ExecutorConfig holds configuration options for BackgroundExecutor.
type ExecutorConfig struct {
	// Name identifies the executor in logs, metrics and fault sources.
	Name string

	// CheckDelay is slept after each pass that empties the queue. Zero means
	// the worker blocks until the next submission.
	CheckDelay time.Duration

	// HistoryCapacity bounds RecentExecutions. Defaults to 100.
	HistoryCapacity int

	// Logger, FaultHandler and Metrics behave as in SchedulerConfig. When the
	// executor is built through FrameScheduler.NewBackgroundExecutor, nil
	// values are inherited from the scheduler.
	Logger       *Logger
	FaultHandler FaultHandler
	Metrics      Metrics
}

// DefaultExecutorConfig returns a config with no inter-pass delay.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Name:            defaultExecutorName,
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}
