// Package alerts holds the deduplicated, time-bounded set of behavior events
// shown to reviewers.
package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/behavior"
)

// Config contains the deduplication and retention windows.
type Config struct {
	// SuppressionWindow: a new event is dropped while an entry with the same
	// subject and type is younger than this.
	SuppressionWindow time.Duration `yaml:"suppression_window" json:"suppression_window"`
	// RetentionWindow is the age at which an entry is removed.
	RetentionWindow time.Duration `yaml:"retention_window" json:"retention_window"`
}

// DefaultConfig returns a 5s suppression window and a 30s retention window.
func DefaultConfig() Config {
	return Config{
		SuppressionWindow: 5 * time.Second,
		RetentionWindow:   30 * time.Second,
	}
}

type key struct {
	personID string
	kind     behavior.Type
}

// Set is the alert set. It is safe for concurrent use: the pipeline merges and
// prunes while consumers dismiss, clear and read.
type Set struct {
	mu      sync.Mutex
	config  Config
	entries []behavior.Event
}

// NewSet creates an empty alert set.
//
// Arguments:
//   - config: The suppression and retention windows.
//
// Returns:
//   - *Set: The alert set.
//
// @example
// set := alerts.NewSet(alerts.DefaultConfig())
// accepted := set.Merge(events, time.Now())
func NewSet(config Config) *Set {
	return &Set{config: config}
}

// Merge prunes expired entries, then appends every event that is not a duplicate.
//
// An event is a duplicate when an entry with the same subject and type is
// younger than the suppression window at now. Events accepted earlier in the
// same call count as entries, so a batch never holds two events for one key.
//
// Arguments:
//   - events: The events produced by the analyzer for one frame.
//   - now: The merge time.
//
// Returns:
//   - []behavior.Event: The events that were accepted, in input order.
func (s *Set) Merge(events []behavior.Event, now time.Time) []behavior.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(now)

	var accepted []behavior.Event
	for _, e := range events {
		if s.suppressed(key{e.PersonID, e.Type}, now) {
			continue
		}
		s.entries = append(s.entries, e)
		accepted = append(accepted, e)
	}
	return accepted
}

func (s *Set) suppressed(k key, now time.Time) bool {
	for _, e := range s.entries {
		if e.PersonID != k.personID || e.Type != k.kind {
			continue
		}
		if now.Sub(e.Timestamp) < s.config.SuppressionWindow {
			return true
		}
	}
	return false
}

// Prune removes every entry whose age at now has reached the retention window.
// Calling it twice with the same now removes nothing the second time.
func (s *Set) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune(now)
}

func (s *Set) prune(now time.Time) int {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if now.Sub(e.Timestamp) < s.config.RetentionWindow {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	// Drop references held past the new length.
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = behavior.Event{}
	}
	s.entries = kept
	return removed
}

// Dismiss removes the entry with the given id. It reports whether one was found.
func (s *Set) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAll empties the set.
func (s *Set) ClearAll() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Sorted returns a copy of the entries, newest first. Entries with equal
// timestamps keep their insertion order.
func (s *Set) Sorted() []behavior.Event {
	s.mu.Lock()
	out := make([]behavior.Event, len(s.entries))
	copy(out, s.entries)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Len returns the number of entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HighSeverityCount returns the number of entries whose type is high severity.
func (s *Set) HighSeverityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Severity() == behavior.SeverityHigh {
			n++
		}
	}
	return n
}

// Config returns the set's windows.
func (s *Set) Config() Config {
	return s.config
}
