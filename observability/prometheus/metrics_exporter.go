package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-frame-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "framerunner"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	PhaseBuckets    []float64
}

// defaultPhaseBuckets spans sub-millisecond phases up to a few frames.
var defaultPhaseBuckets = []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .016, .033, .05, .1}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	callbackDurationSeconds *prom.HistogramVec
	callbackFaultTotal      *prom.CounterVec
	cancelledTotal          *prom.CounterVec
	queueDepth              *prom.GaugeVec
	phaseDurationSeconds    *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	phaseBuckets := opts.PhaseBuckets
	if len(phaseBuckets) == 0 {
		phaseBuckets = defaultPhaseBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "callback_duration_seconds",
		Help:      "Callback execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"source"})
	faultVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "callback_fault_total",
		Help:      "Total number of callbacks that panicked.",
	}, []string{"source"})
	cancelledVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "cancelled_total",
		Help:      "Total number of background work items cancelled by tag.",
	}, []string{"source"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Callbacks waiting in a queue at its last drain.",
	}, []string{"source"})
	phaseVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Frame phase transition duration in seconds.",
		Buckets:   phaseBuckets,
	}, []string{"scheduler", "phase"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if faultVec, err = registerCollector(reg, faultVec); err != nil {
		return nil, err
	}
	if cancelledVec, err = registerCollector(reg, cancelledVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if phaseVec, err = registerCollector(reg, phaseVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		callbackDurationSeconds: durationVec,
		callbackFaultTotal:      faultVec,
		cancelledTotal:          cancelledVec,
		queueDepth:              queueDepthVec,
		phaseDurationSeconds:    phaseVec,
	}, nil
}

// RecordCallbackDuration records callback execution duration.
func (m *MetricsExporter) RecordCallbackDuration(source string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callbackDurationSeconds.WithLabelValues(normalizeLabel(source, "unknown")).Observe(duration.Seconds())
}

// RecordCallbackFault records a callback panic.
func (m *MetricsExporter) RecordCallbackFault(source string, panicInfo any) {
	if m == nil {
		return
	}
	m.callbackFaultTotal.WithLabelValues(normalizeLabel(source, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(source string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(source, "unknown")).Set(float64(depth))
}

// RecordCancelled adds count cancelled work items.
func (m *MetricsExporter) RecordCancelled(source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cancelledTotal.WithLabelValues(normalizeLabel(source, "unknown")).Add(float64(count))
}

// RecordPhase records one phase transition.
func (m *MetricsExporter) RecordPhase(scheduler string, phase core.Phase, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDurationSeconds.WithLabelValues(normalizeLabel(scheduler, "unknown"), phaseLabel(phase)).Observe(duration.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func phaseLabel(phase core.Phase) string {
	if !phase.Valid() {
		return "unknown"
	}
	return phase.String()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
