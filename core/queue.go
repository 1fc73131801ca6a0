package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskItem is a queued task with its optional tag.
type TaskItem struct {
	Task   Task
	Tag    Tag
	Tagged bool
	Name   string
}

// matches reports whether the item carries tag.
func (i TaskItem) matches(tag Tag) bool {
	return i.Tagged && i.Tag == tag
}

// =============================================================================
// FIFOTaskQueue: mutex-guarded FIFO shared between goroutines
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks []TaskItem
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{
		tasks: make([]TaskItem, 0, defaultQueueCap),
	}
}

func (q *FIFOTaskQueue) Push(item TaskItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, item)
}

func (q *FIFOTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return TaskItem{}, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = TaskItem{}
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *FIFOTaskQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if n == 0 || max <= 0 {
		return nil
	}

	if n <= max {
		batch := q.tasks
		q.tasks = make([]TaskItem, 0, defaultQueueCap)
		return batch
	}

	batch := make([]TaskItem, max)
	copy(batch, q.tasks[:max])

	// Zero out the elements in the underlying array to prevent memory leak
	for i := range max {
		q.tasks[i] = TaskItem{}
	}

	q.tasks = q.tasks[max:]
	q.maybeCompactLocked()

	return batch
}

// RemoveIf deletes every item for which match returns true and returns them.
// Survivors keep their relative order. The whole pass holds the lock, so
// concurrent pushes land either before or after it, never in between.
func (q *FIFOTaskQueue) RemoveIf(match func(TaskItem) bool) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []TaskItem
	kept := q.tasks[:0]
	for _, item := range q.tasks {
		if match(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = TaskItem{}
	}
	q.tasks = kept
	q.maybeCompactLocked()

	return removed
}

func (q *FIFOTaskQueue) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maybeCompactLocked()
}

func (q *FIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]TaskItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks from the queue and releases references
func (q *FIFOTaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Create a new slice to release all task references
	q.tasks = make([]TaskItem, 0, defaultQueueCap)
}
