package controller

import "time"

// Health bands the observed throughput.
type Health string

const (
	HealthGood     Health = "good"
	HealthDegraded Health = "degraded"
	HealthPoor     Health = "poor"
)

// Stats is recomputed after every completed pipeline step.
type Stats struct {
	// TotalDetected is the number of subjects in the last frame.
	TotalDetected int `json:"totalDetected"`
	// SuspiciousCount is the number of events the analyzer emitted for the last
	// frame, before deduplication.
	SuspiciousCount int `json:"suspiciousCount"`
	// LastUpdated is when the last step completed.
	LastUpdated time.Time `json:"lastUpdated"`
	// FPS is the number of steps completed in the trailing second.
	FPS int `json:"fps"`
}

// Health returns good at 20 fps or more, degraded at 10 or more, poor otherwise.
func (s Stats) Health() Health {
	switch {
	case s.FPS >= 20:
		return HealthGood
	case s.FPS >= 10:
		return HealthDegraded
	default:
		return HealthPoor
	}
}

// RateCounter counts marks inside a trailing window.
type RateCounter struct {
	window time.Duration
	marks  []time.Time
}

// NewRateCounter creates a counter over the given trailing window.
func NewRateCounter(window time.Duration) *RateCounter {
	return &RateCounter{window: window}
}

// Mark records an event at now and returns the count inside the window.
func (r *RateCounter) Mark(now time.Time) int {
	r.marks = append(r.marks, now)
	return r.Count(now)
}

// Count drops marks that left the window and returns how many remain.
// A mark exactly one window old has left.
func (r *RateCounter) Count(now time.Time) int {
	i := 0
	for i < len(r.marks) && now.Sub(r.marks[i]) >= r.window {
		i++
	}
	if i > 0 {
		r.marks = append(r.marks[:0], r.marks[i:]...)
	}
	return len(r.marks)
}
