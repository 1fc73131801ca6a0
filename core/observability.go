package core

import "time"

// ExecutionRecord captures one completed background work item.
type ExecutionRecord struct {
	ID         string
	Name       string
	Executor   string
	Tag        Tag
	Tagged     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	Cancelled  bool
}

// QueueStats is the pending count of one invocation queue.
type QueueStats struct {
	Name    string
	Pending int
}

// SchedulerStats represents runtime observability state for a FrameScheduler.
type SchedulerStats struct {
	ID          string
	Name        string
	Phase       Phase
	Frame       uint64
	Queues      []QueueStats
	Subscribers int
	Faults      int64
	Delayed     int
	Initialized bool
	Closed      bool
}

// ExecutorStats represents runtime observability state for a BackgroundExecutor.
type ExecutorStats struct {
	ID           string
	Name         string
	Pending      int
	Running      bool
	ExecutingTag Tag
	Tagged       bool
	Generation   uint64
	Executed     int64
	Faults       int64
	Cancelled    int64
	Closed       bool
	LastTaskName string
	LastTaskAt   time.Time
}
