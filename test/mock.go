// Package test - shared fakes for driving the pipeline without a camera or model.
package test

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/common"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/models"
)

// ScriptedDetector returns a fixed script of detection results, one entry per call.
// Once the script is exhausted the last entry repeats.
//
// @example
// det := test.NewScriptedDetector(
//
//	test.Step(test.Person(100, 100)),
//	test.Step(test.Person(100, 160), test.Phone(110, 150, 0.8)),
//
// )
type ScriptedDetector struct {
	mu     sync.Mutex
	script []ScriptStep
	calls  int
	delay  time.Duration
}

// ScriptStep is the outcome of one Detect call.
type ScriptStep struct {
	Detections []common.Detection
	Err        error
}

// Step builds a successful script step.
func Step(detections ...common.Detection) ScriptStep {
	return ScriptStep{Detections: detections}
}

// Fail builds a failing script step.
func Fail(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// NewScriptedDetector creates a detector that plays back script.
func NewScriptedDetector(script ...ScriptStep) *ScriptedDetector {
	return &ScriptedDetector{script: script}
}

// WithDelay makes every call sleep for d or until ctx is done.
func (d *ScriptedDetector) WithDelay(delay time.Duration) *ScriptedDetector {
	d.delay = delay
	return d
}

// Detect implements controller.Detector.
func (d *ScriptedDetector) Detect(ctx context.Context, _ controller.Frame) ([]common.Detection, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if len(d.script) == 0 {
		return nil, nil
	}
	i := d.calls - 1
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	step := d.script[i]
	if step.Err != nil {
		return nil, step.Err
	}
	out := make([]common.Detection, len(step.Detections))
	copy(out, step.Detections)
	return out, nil
}

// Calls returns how many times Detect ran.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Person is a 100x200 person detection centered on (x, y).
func Person(x, y float32) common.Detection {
	return Detection(models.LabelPerson, x, y, 100, 200, 0.9)
}

// Phone is a 20x40 phone detection centered on (x, y).
func Phone(x, y, confidence float32) common.Detection {
	return Detection(models.LabelCellPhone, x, y, 20, 40, confidence)
}

// Detection builds a detection of the given size centered on (x, y).
func Detection(label string, x, y, w, h, confidence float32) common.Detection {
	return common.Detection{
		Label:      label,
		Confidence: confidence,
		Box:        common.BoundingBox{X: x - w/2, Y: y - h/2, Width: w, Height: h},
	}
}

// FrameSource hands out blank frames with increasing ids.
type FrameSource struct {
	mu     sync.Mutex
	next   int
	width  int
	height int
	err    error
}

// NewFrameSource creates a source of width x height blank frames.
func NewFrameSource(width, height int) *FrameSource {
	return &FrameSource{width: width, height: height}
}

// SetError makes every following Next call fail with err. Nil restores frames.
func (s *FrameSource) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Next implements controller.FrameSource.
func (s *FrameSource) Next(ctx context.Context) (controller.Frame, error) {
	if err := ctx.Err(); err != nil {
		return controller.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return controller.Frame{}, s.err
	}
	frame := controller.Frame{
		ID:        s.next,
		Image:     image.NewRGBA(image.Rect(0, 0, s.width, s.height)),
		Timestamp: time.Now(),
	}
	s.next++
	return frame, nil
}

// Served returns how many frames were handed out.
func (s *FrameSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Readiness is a settable model readiness.
type Readiness struct {
	mu       sync.Mutex
	loaded   bool
	progress int
}

// NewReadiness creates a readiness in the given state.
func NewReadiness(loaded bool) *Readiness {
	r := &Readiness{}
	r.Set(loaded)
	return r
}

// Set marks the model loaded (progress 100) or not (progress 0).
func (r *Readiness) Set(loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = loaded
	r.progress = 0
	if loaded {
		r.progress = 100
	}
}

// Loaded implements controller.Readiness.
func (r *Readiness) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// Progress implements controller.Readiness.
func (r *Readiness) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}
