// Package benchmark - measures pipeline throughput over synthetic classrooms.
package benchmark

import "time"

// PerformanceMetrics captures the outcome of one scenario run.
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	StepAvg         time.Duration `json:"step_avg"`
	StepMax         time.Duration `json:"step_max"`
	FramesPerSecond float64       `json:"frames_per_second"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	DetectionCount  int           `json:"detection_count"`
	EventCount      int           `json:"event_count"`
	AlertCount      int           `json:"alert_count"`
	ErrorRate       float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage across a run.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
}
