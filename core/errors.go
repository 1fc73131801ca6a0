package core

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrNullArgument is returned when a nil task is submitted.
	ErrNullArgument = errors.New("framerunner: task cannot be nil")

	// ErrWrongThread is returned when a control-goroutine-only operation is
	// called from another goroutine.
	ErrWrongThread = errors.New("framerunner: must be called on the control goroutine")

	// ErrNotInitialized is returned when the scheduler has no control goroutine yet.
	ErrNotInitialized = errors.New("framerunner: scheduler is not initialized")

	// ErrAlreadyInitialized is returned by Init on a bound scheduler.
	ErrAlreadyInitialized = errors.New("framerunner: scheduler is already initialized")

	// ErrSchedulerClosed is returned when submitting to a scheduler after Shutdown.
	ErrSchedulerClosed = errors.New("framerunner: scheduler has been shut down")

	// ErrExecutorClosed is returned when submitting to a stopped executor.
	ErrExecutorClosed = errors.New("framerunner: executor has been stopped")

	// ErrPhaseOrder is returned when a phase is entered out of cycle order.
	ErrPhaseOrder = errors.New("framerunner: phase advanced out of order")

	// ErrInvalidPhase is returned for a Phase outside Pre..End.
	ErrInvalidPhase = errors.New("framerunner: invalid phase")

	// ErrExecutionCancelled is the cancellation cause of a work item
	// targeted by CancelAll.
	ErrExecutionCancelled = errors.New("framerunner: execution cancelled")
)

// CallbackFault wraps a panic recovered from a task during a drain or a
// worker pass.
type CallbackFault struct {
	// Source names the queue or executor that ran the task.
	Source string
	// Value is the recovered panic value.
	Value any
	// Stack is the stack trace captured at recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *CallbackFault) Error() string {
	return fmt.Sprintf("framerunner: unhandled callback fault in %s: %v", e.Source, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *CallbackFault) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// terminateSignal is the panic value used by Checkpoint. It unwinds a
// cancelled task without being reported as a fault.
type terminateSignal struct {
	cause error
}

func (s terminateSignal) Error() string { return "framerunner: task terminated: " + s.cause.Error() }

func (s terminateSignal) Unwrap() error { return s.cause }
