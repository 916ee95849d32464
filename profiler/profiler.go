// Package profiler - samples runtime and pipeline metrics and reports them
// periodically through the structured logger.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/nvr-ai/go-proctor/internal/timeutil"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks operation timings, custom metrics and runtime memory,
// and logs a summary every report interval. It is safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	clock          timeutil.Clock

	mu         sync.RWMutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startTime  time.Time
	memStats   runtime.MemStats
	metrics    map[string]*MetricTracker
	operations map[string]*TimeTracker
	collectors []MetricsCollector
}

// MetricTracker keeps a bounded window of samples for one metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
	last   time.Time
}

func (m *MetricTracker) add(value float64, now time.Time, limit int) {
	if m.count == 0 || value < m.min {
		m.min = value
	}
	if m.count == 0 || value > m.max {
		m.max = value
	}
	m.values = append(m.values, value)
	m.sum += value
	if len(m.values) > limit {
		m.sum -= m.values[0]
		m.values = m.values[1:]
	}
	m.count++
	m.last = now
}

// TimeTracker keeps a bounded window of durations for one operation.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, limit int) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if t.count == 0 || d > t.max {
		t.max = d
	}
	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > limit {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// MetricSummary is the windowed view of one metric.
type MetricSummary struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// OperationSummary is the windowed view of one timed operation.
type OperationSummary struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Stats is a point-in-time copy of everything the profiler tracks.
type Stats struct {
	Uptime     time.Duration               `json:"uptime"`
	Goroutines int                         `json:"goroutines"`
	HeapAlloc  uint64                      `json:"heap_alloc"`
	NumGC      uint32                      `json:"num_gc"`
	Metrics    map[string]MetricSummary    `json:"metrics"`
	Operations map[string]OperationSummary `json:"operations"`
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a report (default: 30s).
	ReportInterval time.Duration
	// SampleInterval specifies how often collectors are polled (default: 1s).
	SampleInterval time.Duration
	// MaxSamples bounds every metric and operation window (default: 600).
	MaxSamples int
	// Clock replaces the wall clock.
	Clock timeutil.Clock
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 30 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		clock:          opts.Clock,
		startTime:      opts.Clock.Now(),
		metrics:        make(map[string]*MetricTracker),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start begins sampling and reporting. Calling it on a running profiler is a no-op.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.cancel != nil {
		return
	}
	ctx, rp.cancel = context.WithCancel(ctx)
	rp.startTime = rp.clock.Now()

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		sample := rp.clock.NewTicker(rp.sampleInterval)
		defer sample.Stop()
		report := rp.clock.NewTicker(rp.reportInterval)
		defer report.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sample.C():
				rp.Sample()
			case <-report.C():
				rp.Report()
			}
		}
	}()
}

// Stop stops the background loop and waits for it to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	cancel := rp.cancel
	rp.cancel = nil
	rp.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	rp.wg.Wait()
}

// AddMetricsCollector registers a collector polled on every sample.
//
// Arguments:
// - collector: An implementation of MetricsCollector interface
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	now := rp.clock.Now()
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.record(name, value, now)
}

func (rp *RuntimeProfiler) record(name string, value float64, now time.Time) {
	tracker, ok := rp.metrics[name]
	if !ok {
		tracker = &MetricTracker{}
		rp.metrics[name] = tracker
	}
	tracker.add(value, now, rp.maxSamples)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := rp.clock.Now()
	return func() {
		rp.RecordOperation(name, rp.clock.Since(start))
	}
}

// RecordOperation records one completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, d time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &TimeTracker{}
		rp.operations[name] = tracker
	}
	tracker.add(d, rp.maxSamples)
}

// Sample reads runtime memory statistics and polls every collector.
func (rp *RuntimeProfiler) Sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors may take their own locks; call them outside ours.
	collected := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		collected = append(collected, c.CollectMetrics())
	}

	now := rp.clock.Now()
	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)
	for _, metrics := range collected {
		for name, value := range metrics {
			rp.record(name, value, now)
		}
	}
}

// Stats returns the current windowed statistics.
func (rp *RuntimeProfiler) Stats() Stats {
	now := rp.clock.Now()
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	stats := Stats{
		Uptime:     now.Sub(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  rp.memStats.HeapAlloc,
		NumGC:      rp.memStats.NumGC,
		Metrics:    make(map[string]MetricSummary, len(rp.metrics)),
		Operations: make(map[string]OperationSummary, len(rp.operations)),
	}
	for name, m := range rp.metrics {
		if len(m.values) == 0 {
			continue
		}
		stats.Metrics[name] = MetricSummary{
			Avg:     m.sum / float64(len(m.values)),
			Min:     m.min,
			Max:     m.max,
			Samples: len(m.values),
		}
	}
	for name, op := range rp.operations {
		if len(op.durations) == 0 {
			continue
		}
		stats.Operations[name] = OperationSummary{
			Avg:   op.total / time.Duration(len(op.durations)),
			Min:   op.min,
			Max:   op.max,
			Count: op.count,
		}
	}
	return stats
}

// Report logs the current statistics at INFO.
func (rp *RuntimeProfiler) Report() {
	stats := rp.Stats()

	attrs := []any{
		"uptime", stats.Uptime.Truncate(time.Second),
		"goroutines", stats.Goroutines,
		"heap_alloc", formatBytes(stats.HeapAlloc),
		"gc_cycles", stats.NumGC,
	}

	names := make([]string, 0, len(stats.Operations))
	for name := range stats.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := stats.Operations[name]
		attrs = append(attrs, slog.Group("op."+name,
			"avg", op.Avg.Truncate(time.Microsecond),
			"max", op.Max.Truncate(time.Microsecond),
			"count", op.Count,
		))
	}

	names = names[:0]
	for name := range stats.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := stats.Metrics[name]
		attrs = append(attrs, slog.Group(name, "avg", m.Avg, "max", m.Max))
	}

	log.Info("runtime report", attrs...)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
