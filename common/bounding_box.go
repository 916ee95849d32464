// Package common - geometry shared by the detector adapters, the tracker and the analyzer.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Point is a position in source-frame pixel units.
type Point struct {
	X, Y float32
}

// Distance returns the Euclidean distance between two points.
//
// Arguments:
// - other: The point to measure against.
//
// Returns:
// - The distance in pixels. NaN if either point is not finite.
//
// @example
// a := Point{X: 100, Y: 100}
// b := Point{X: 100, Y: 160}
// d := a.Distance(b) // 60
func (p Point) Distance(other Point) float32 {
	return math32.Hypot(p.X-other.X, p.Y-other.Y)
}

// Finite reports whether both coordinates are real numbers.
func (p Point) Finite() bool {
	return !math32.IsNaN(p.X) && !math32.IsNaN(p.Y) &&
		!math32.IsInf(p.X, 0) && !math32.IsInf(p.Y, 0)
}

// BoundingBox is an axis-aligned box in source-frame pixel units, anchored at its
// top-left corner.
type BoundingBox struct {
	X, Y, Width, Height float32
}

// BoxFromCorners builds a box from two opposite corners in any order.
func BoxFromCorners(x1, y1, x2, y2 float32) BoundingBox {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// BoxFromRect converts an integral image.Rectangle to a box.
func BoxFromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{
		X:      float32(r.Min.X),
		Y:      float32(r.Min.Y),
		Width:  float32(r.Dx()),
		Height: float32(r.Dy()),
	}
}

// Center returns the midpoint of the box.
//
// Returns:
// - The box center. Degenerate boxes still yield their anchor-relative midpoint.
//
// @example
// box := BoundingBox{X: 80, Y: 60, Width: 40, Height: 80}
// c := box.Center() // (100, 100)
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float32 {
	if b.Degenerate() {
		return 0
	}
	return b.Width * b.Height
}

// Degenerate reports whether the box has no usable area or non-finite geometry.
func (b BoundingBox) Degenerate() bool {
	if !(Point{X: b.X, Y: b.Y}).Finite() || !(Point{X: b.Width, Y: b.Height}).Finite() {
		return true
	}
	return b.Width <= 0 || b.Height <= 0
}

// Scale maps the box by independent horizontal and vertical factors, e.g. from
// model input space back to frame space.
func (b BoundingBox) Scale(sx, sy float32) BoundingBox {
	return BoundingBox{X: b.X * sx, Y: b.Y * sy, Width: b.Width * sx, Height: b.Height * sy}
}

// ToRect converts the box to an image.Rectangle.
//
// This loses fractional pixels around the edges, which is fine for drawing.
func (b BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height)).Canon()
}

// Intersection calculates the overlapping area between two boxes.
func (b BoundingBox) Intersection(other BoundingBox) float32 {
	x1 := math32.Max(b.X, other.X)
	y1 := math32.Max(b.Y, other.Y)
	x2 := math32.Min(b.X+b.Width, other.X+other.Width)
	y2 := math32.Min(b.Y+b.Height, other.Y+other.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	return (x2 - x1) * (y2 - y1)
}

// IoU calculates the Intersection over Union between two boxes.
//
// Arguments:
// - other: The other bounding box.
//
// Returns:
// - The IoU value between 0 and 1. Zero when the union is empty.
//
// @example
// a := BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}
// b := BoundingBox{X: 50, Y: 50, Width: 100, Height: 100}
// iou := a.IoU(b) // ~0.143 (2500/17500)
func (b BoundingBox) IoU(other BoundingBox) float32 {
	inter := b.Intersection(other)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.1f, %.1f) %.1fx%.1f", b.X, b.Y, b.Width, b.Height)
}

// Detection is one labeled, scored box returned by the frame detector for a
// single frame. It is not retained beyond the analysis of that frame.
type Detection struct {
	Label      string
	Confidence float32
	Box        BoundingBox
}

func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f): %s", d.Label, d.Confidence, d.Box)
}
