package core

import (
	"sync/atomic"

	"github.com/Swind/go-frame-runner/internal/goid"
)

// ControlThread reports whether the caller runs on the control goroutine.
// FrameScheduler implements it; queues and executors are built on it.
type ControlThread interface {
	IsControlThread() bool
}

// controlBinding records the id of the control goroutine. Zero means unbound.
type controlBinding struct {
	id atomic.Uint64
}

// bind claims the calling goroutine. It fails if another goroutine is bound.
func (b *controlBinding) bind() bool {
	return b.id.CompareAndSwap(0, goid.Current())
}

func (b *controlBinding) unbind() {
	b.id.Store(0)
}

func (b *controlBinding) bound() bool {
	return b.id.Load() != 0
}

func (b *controlBinding) isCurrent() bool {
	id := b.id.Load()
	if id == 0 {
		return false
	}
	return goid.Current() == id
}
