// Package tracking - turns raw per-frame detections into tracked subjects and keeps
// their last-known positions across frames.
package tracking

import (
	"fmt"

	"github.com/nvr-ai/go-proctor/common"
)

// Person is a subject found in the current frame. It is rebuilt every frame;
// identity is carried forward only through the Tracker's position table.
type Person struct {
	ID          string             `json:"id"`
	Box         common.BoundingBox `json:"box"`
	Confidence  float32            `json:"confidence"`
	StudentID   string             `json:"studentId,omitempty"`
	StudentName string             `json:"studentName,omitempty"`
}

// Center returns the center of the person's box.
func (p Person) Center() common.Point {
	return p.Box.Center()
}

// IDFormat is the shape of every identity handed out by an assigner.
const IDFormat = "person-%d"

// FormatID renders the identity for index n.
func FormatID(n int) string {
	return fmt.Sprintf(IDFormat, n)
}
