package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingFaultHandler collects faults for assertions.
type recordingFaultHandler struct {
	mu     sync.Mutex
	faults []*CallbackFault
}

func (h *recordingFaultHandler) HandleFault(ctx context.Context, fault *CallbackFault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, fault)
}

func (h *recordingFaultHandler) Faults() []*CallbackFault {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*CallbackFault(nil), h.faults...)
}

// orderLog is a goroutine-safe append-only log.
type orderLog struct {
	mu    sync.Mutex
	items []string
}

func (l *orderLog) Add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
}

func (l *orderLog) Items() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.items...)
}

// newTestScheduler returns a scheduler bound to the calling test goroutine,
// shut down on cleanup.
func newTestScheduler(t *testing.T) (*FrameScheduler, *recordingFaultHandler) {
	t.Helper()
	faults := &recordingFaultHandler{}
	s := NewFrameScheduler(&SchedulerConfig{Name: "test", FaultHandler: faults})
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Shutdown() })
	return s, faults
}

// tickUntil ticks s on the calling goroutine until cond holds, failing after
// two seconds.
func tickUntil(t *testing.T, s *FrameScheduler, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.NoError(t, s.Tick())
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// onOtherGoroutine runs fn on a fresh goroutine and waits for it.
func onOtherGoroutine(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	wg.Wait()
}

// fixedControl is a ControlThread with a fixed answer.
type fixedControl bool

func (c fixedControl) IsControlThread() bool { return bool(c) }
