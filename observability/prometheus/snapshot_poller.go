package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-frame-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// ExecutorSnapshotProvider provides current executor stats snapshots.
type ExecutorSnapshotProvider interface {
	Stats() core.ExecutorStats
}

// SnapshotPoller periodically exports scheduler/executor Stats() snapshots
// into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	executorsMu sync.RWMutex
	executors   map[string]ExecutorSnapshotProvider

	schedulerFrame       *prom.GaugeVec
	schedulerPhase       *prom.GaugeVec
	schedulerPending     *prom.GaugeVec
	schedulerSubscribers *prom.GaugeVec
	schedulerDelayed     *prom.GaugeVec
	schedulerFaults      *prom.GaugeVec
	schedulerClosed      *prom.GaugeVec

	executorPending    *prom.GaugeVec
	executorRunning    *prom.GaugeVec
	executorExecuted   *prom.GaugeVec
	executorCancelled  *prom.GaugeVec
	executorFaults     *prom.GaugeVec
	executorGeneration *prom.GaugeVec
	executorClosed     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: defaultNamespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		executors:  make(map[string]ExecutorSnapshotProvider),

		schedulerFrame:       gauge("scheduler_frame", "Frames completed per scheduler.", "scheduler"),
		schedulerPhase:       gauge("scheduler_phase", "Current phase index per scheduler (0=pre, 3=end).", "scheduler"),
		schedulerPending:     gauge("scheduler_queue_pending", "Callbacks waiting per scheduler queue.", "scheduler", "queue"),
		schedulerSubscribers: gauge("scheduler_subscribers", "Persistent subscribers per scheduler.", "scheduler"),
		schedulerDelayed:     gauge("scheduler_delayed", "Delayed callbacks waiting per scheduler.", "scheduler"),
		schedulerFaults:      gauge("scheduler_faults", "Callback fault count snapshot per scheduler.", "scheduler"),
		schedulerClosed:      gauge("scheduler_closed", "Scheduler closed state (1=closed, 0=open).", "scheduler"),

		executorPending:    gauge("executor_pending", "Queued work items per executor.", "executor"),
		executorRunning:    gauge("executor_running", "Executor busy state (1=running an item, 0=idle).", "executor"),
		executorExecuted:   gauge("executor_executed", "Executed work item count snapshot per executor.", "executor"),
		executorCancelled:  gauge("executor_cancelled", "Cancelled work item count snapshot per executor.", "executor"),
		executorFaults:     gauge("executor_faults", "Work item fault count snapshot per executor.", "executor"),
		executorGeneration: gauge("executor_worker_generation", "Worker generation per executor.", "executor"),
		executorClosed:     gauge("executor_closed", "Executor closed state (1=closed, 0=open).", "executor"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.schedulerFrame, &p.schedulerPhase, &p.schedulerPending, &p.schedulerSubscribers,
		&p.schedulerDelayed, &p.schedulerFaults, &p.schedulerClosed,
		&p.executorPending, &p.executorRunning, &p.executorExecuted, &p.executorCancelled,
		&p.executorFaults, &p.executorGeneration, &p.executorClosed,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddExecutor adds or replaces an executor snapshot provider by name.
func (p *SnapshotPoller) AddExecutor(name string, provider ExecutorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "executor")
	p.executorsMu.Lock()
	p.executors[name] = provider
	p.executorsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerFrame.WithLabelValues(name).Set(float64(stats.Frame))
		p.schedulerPhase.WithLabelValues(name).Set(float64(stats.Phase))
		for _, q := range stats.Queues {
			p.schedulerPending.WithLabelValues(name, normalizeLabel(q.Name, "unknown")).Set(float64(q.Pending))
		}
		p.schedulerSubscribers.WithLabelValues(name).Set(float64(stats.Subscribers))
		p.schedulerDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.schedulerFaults.WithLabelValues(name).Set(float64(stats.Faults))
		p.schedulerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.schedulersMu.RUnlock()

	p.executorsMu.RLock()
	for name, provider := range p.executors {
		stats := provider.Stats()
		p.executorPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.executorRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.executorExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.executorCancelled.WithLabelValues(name).Set(float64(stats.Cancelled))
		p.executorFaults.WithLabelValues(name).Set(float64(stats.Faults))
		p.executorGeneration.WithLabelValues(name).Set(float64(stats.Generation))
		p.executorClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.executorsMu.RUnlock()
}
