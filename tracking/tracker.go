package tracking

import (
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/common"
)

// PositionRecord is the last-known center of one identity.
type PositionRecord struct {
	Center     common.Point
	ObservedAt time.Time
}

// Delta describes how a subject moved between its previous and current observation.
type Delta struct {
	Previous common.Point
	Current  common.Point
	Elapsed  time.Duration
	Distance float32
}

// VerticalShift is current.y - previous.y; positive means the subject moved down.
func (d Delta) VerticalShift() float32 {
	return d.Current.Y - d.Previous.Y
}

// Tracker keeps one PositionRecord per identity across frames.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]PositionRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]PositionRecord)}
}

// Update records the person's current center and reports movement since the
// previous observation.
//
// The record is overwritten whether or not a delta was produced.
//
// Arguments:
//   - p: The person observed in the current frame.
//   - now: Observation time.
//
// Returns:
//   - Delta: Movement since the previous observation.
//   - bool: False when there is no history for p.ID.
func (t *Tracker) Update(p Person, now time.Time) (Delta, bool) {
	current := p.Center()

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.records[p.ID]
	t.records[p.ID] = PositionRecord{Center: current, ObservedAt: now}
	if !ok {
		return Delta{}, false
	}
	return Delta{
		Previous: prev.Center,
		Current:  current,
		Elapsed:  now.Sub(prev.ObservedAt),
		Distance: current.Distance(prev.Center),
	}, true
}

// Evict drops every record not refreshed within staleAfter of now.
// A non-positive staleAfter disables eviction.
//
// Returns:
//   - The evicted identities.
func (t *Tracker) Evict(now time.Time, staleAfter time.Duration) []string {
	if staleAfter <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for id, rec := range t.records {
		if now.Sub(rec.ObservedAt) > staleAfter {
			delete(t.records, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Record returns the stored record for id.
func (t *Tracker) Record(id string) (PositionRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Positions implements PositionSource.
func (t *Tracker) Positions() map[string]common.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]common.Point, len(t.records))
	for id, rec := range t.records {
		out[id] = rec.Center
	}
	return out
}

// Len returns the number of tracked identities.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Reset forgets every identity.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]PositionRecord)
}
