package core

import (
	"fmt"
	"sync/atomic"
)

// Phase is a stage of the frame cycle.
type Phase int32

const (
	// PhasePre runs the before-frame queue.
	PhasePre Phase = iota

	// PhaseMiddle runs the next-frame queue and the main-thread queue.
	PhaseMiddle

	// PhaseLate drains nothing; it is an ordering barrier for subscribers.
	PhaseLate

	// PhaseEnd runs the end-frame queue.
	PhaseEnd

	phaseCount = 4
)

// String returns the name of the phase.
func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhaseMiddle:
		return "middle"
	case PhaseLate:
		return "late"
	case PhaseEnd:
		return "end"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Valid reports whether p is one of the four cycle phases.
func (p Phase) Valid() bool {
	return p >= PhasePre && p <= PhaseEnd
}

// Next returns the phase that follows p in the cycle (End wraps to Pre).
func (p Phase) Next() Phase {
	return (p + 1) % phaseCount
}

// phaseHolder stores the current phase. Written by the control goroutine,
// read from anywhere.
type phaseHolder struct {
	v atomic.Int32
}

func (h *phaseHolder) Load() Phase {
	return Phase(h.v.Load())
}

func (h *phaseHolder) Store(p Phase) {
	h.v.Store(int32(p))
}
