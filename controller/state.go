package controller

import (
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/alerts"
	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/tracking"
)

// Snapshot is everything a consumer renders: the current subjects, the alert set
// newest first, stats, the session summary and model readiness.
type Snapshot struct {
	Persons []tracking.Person `json:"persons"`
	Alerts  []behavior.Event  `json:"alerts"`
	Stats   Stats             `json:"stats"`
	Health  Health            `json:"health"`
	Session *Session          `json:"session,omitempty"`
	Model   ModelStatus       `json:"model"`
}

// State is the context threaded through every pipeline stage. The pipeline is
// its only writer apart from consumer dismiss and clear calls on the alert set.
type State struct {
	Tracker *tracking.Tracker
	Alerts  *alerts.Set

	mu      sync.RWMutex
	persons []tracking.Person
	stats   Stats
	session *Session
}

// NewState creates an empty pipeline state.
func NewState(alertConfig alerts.Config) *State {
	return &State{
		Tracker: tracking.NewTracker(),
		Alerts:  alerts.NewSet(alertConfig),
		persons: []tracking.Person{},
	}
}

// commit publishes the outcome of one step.
func (s *State) commit(persons []tracking.Person, emitted, accepted, fps int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persons = persons
	s.stats = Stats{
		TotalDetected:   len(persons),
		SuspiciousCount: emitted,
		LastUpdated:     now,
		FPS:             fps,
	}
	if s.session != nil {
		s.session.record(accepted, s.Alerts.Len(), len(persons))
	}
}

// BeginSession opens a new session, replacing any previous one.
func (s *State) BeginSession(room string, now time.Time) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = newSession(room, now)
	return s.session.summary(now)
}

// EndSession closes the current session. It returns false when none is open.
func (s *State) EndSession(now time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	s.session.close(now)
	return s.session.summary(now), true
}

// Session returns the current session summary evaluated at now.
func (s *State) Session(now time.Time) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return s.session.summary(now), true
}

// Persons returns the subjects of the last completed step.
func (s *State) Persons() []tracking.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracking.Person, len(s.persons))
	copy(out, s.persons)
	return out
}

// Stats returns the stats of the last completed step.
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot captures the state at now.
func (s *State) Snapshot(now time.Time, model ModelStatus) Snapshot {
	s.mu.RLock()
	persons := make([]tracking.Person, len(s.persons))
	copy(persons, s.persons)
	snap := Snapshot{
		Persons: persons,
		Stats:   s.stats,
		Health:  s.stats.Health(),
		Model:   model,
	}
	if s.session != nil {
		summary := s.session.summary(now)
		snap.Session = &summary
	}
	s.mu.RUnlock()

	snap.Alerts = s.Alerts.Sorted()
	return snap
}

// Reset forgets tracked positions, alerts, subjects and stats. The session is kept.
func (s *State) Reset() {
	s.Tracker.Reset()
	s.Alerts.ClearAll()

	s.mu.Lock()
	s.persons = []tracking.Person{}
	s.stats = Stats{}
	s.mu.Unlock()
}
