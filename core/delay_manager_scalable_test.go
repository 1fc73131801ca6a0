//go:build !ci

// This test file contains a scalable version of concurrent add test
// that adjusts task count based on available CPUs.
// It is excluded from CI builds to ensure CI stability.

package core

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestDelayManager_ConcurrentAdd_Scalable verifies thread safety with CPU-adjusted task count
// This test is excluded from CI (!ci build tag)
// Given: A DelayManager and multiple goroutines adding tasks
// When: goroutines concurrently add delayed tasks (count scaled by CPU count)
// Then: Every task is handed to its target exactly once
func TestDelayManager_ConcurrentAdd_Scalable(t *testing.T) {
	// Arrange
	dm := NewDelayManager(nil)
	defer dm.Stop()
	target := &collectingInvoker{}

	numCPUs := runtime.NumCPU()
	numTasks := 80
	if numCPUs >= 8 {
		numTasks = 120
	}
	if numCPUs >= 16 {
		numTasks = 160
	}

	t.Logf("Scalable test with %d tasks (CPUs: %d)", numTasks, numCPUs)

	// Act - Concurrently add tasks with different delays
	var wg sync.WaitGroup
	for i := range numTasks {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			delay := time.Duration(id%10)*10*time.Millisecond + 50*time.Millisecond
			dm.AddDelayedTask(func(ctx context.Context) {}, delay, target)
		}(i)
	}
	wg.Wait()

	// Assert - delays are 50-140ms
	deadline := time.Now().Add(2 * time.Second)
	for target.Len() < numTasks && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := target.Len(); got != numTasks {
		t.Errorf("submitted tasks = %d, want %d (CPUs: %d)", got, numTasks, numCPUs)
	}
	if got := dm.TaskCount(); got != 0 {
		t.Errorf("pending tasks = %d, want 0", got)
	}
}
