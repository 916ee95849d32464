// Package behavior - infers flagged behaviors from one frame of detections and the
// tracker's movement history.
package behavior

import "time"

// Type is the kind of behavior an event reports.
type Type string

const (
	// PhoneDetected is a phone found close to a subject.
	PhoneDetected Type = "phone_detected"
	// LookingDown is a sustained downward drift of the subject's center.
	LookingDown Type = "looking_down"
	// SuspiciousHandMovement is reserved; no rule produces it yet.
	SuspiciousHandMovement Type = "suspicious_hand_movement"
	// HeadMovement is a rapid jump of the subject's center.
	HeadMovement Type = "head_movement"
	// LookingAway is reserved; no rule produces it yet.
	LookingAway Type = "looking_away"
)

// Types lists every behavior type in display order.
var Types = []Type{PhoneDetected, LookingDown, SuspiciousHandMovement, HeadMovement, LookingAway}

// Severity ranks how urgently a behavior should be reviewed.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type typeInfo struct {
	label       string
	severity    Severity
	description string
	reserved    bool
}

var typeTable = map[Type]typeInfo{
	PhoneDetected:          {"Phone Detected", SeverityHigh, "Mobile phone detected near student", false},
	LookingDown:            {"Looking Down", SeverityMedium, "Student appears to be looking down frequently", false},
	SuspiciousHandMovement: {"Hand Movement", SeverityMedium, "Suspicious hand movement detected", true},
	HeadMovement:           {"Head Movement", SeverityLow, "Rapid head or body movement detected", false},
	LookingAway:            {"Looking Away", SeverityMedium, "Student appears to be looking away", true},
}

// Valid reports whether t is part of the taxonomy.
func (t Type) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

// Label is the human-readable name of the type.
func (t Type) Label() string {
	if info, ok := typeTable[t]; ok {
		return info.label
	}
	return string(t)
}

// Severity of the type. Unknown types are low.
func (t Type) Severity() Severity {
	if info, ok := typeTable[t]; ok {
		return info.severity
	}
	return SeverityLow
}

// Description is the default event description for the type.
func (t Type) Description() string {
	return typeTable[t].description
}

// Reserved reports whether the type is declared but never produced by the analyzer.
func (t Type) Reserved() bool {
	return typeTable[t].reserved
}

// Event is a discrete, timestamped inference that a subject exhibited a flagged
// pattern. Events are immutable once created.
type Event struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"personId"`
	Type        Type      `json:"type"`
	Confidence  float32   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	StudentID   string    `json:"studentId,omitempty"`
	StudentName string    `json:"studentName,omitempty"`
}

// Severity is shorthand for e.Type.Severity().
func (e Event) Severity() Severity {
	return e.Type.Severity()
}
