package controller

import (
	"time"

	"github.com/google/uuid"
)

// Session summarizes one monitoring run. It lives in memory only.
type Session struct {
	ID               string     `json:"id"`
	Room             string     `json:"room,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	DurationSeconds  float64    `json:"durationSeconds"`
	TotalAlerts      int        `json:"totalAlerts"`
	PeakAlerts       int        `json:"peakAlerts"`
	PeakStudentCount int        `json:"peakStudentCount"`
}

// newSession opens a session at now.
func newSession(room string, now time.Time) *Session {
	return &Session{ID: uuid.NewString(), Room: room, StartedAt: now}
}

// record folds one completed step into the summary.
func (s *Session) record(accepted, alertSetSize, students int) {
	s.TotalAlerts += accepted
	if alertSetSize > s.PeakAlerts {
		s.PeakAlerts = alertSetSize
	}
	if students > s.PeakStudentCount {
		s.PeakStudentCount = students
	}
}

func (s *Session) close(now time.Time) {
	if s.EndedAt == nil {
		ended := now
		s.EndedAt = &ended
	}
}

// summary returns a copy with the duration evaluated at now.
func (s *Session) summary(now time.Time) Session {
	out := *s
	end := now
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
		end = ended
	}
	out.DurationSeconds = end.Sub(s.StartedAt).Seconds()
	return out
}
