// Package controller - drives the detect, extract, track, analyze and merge
// pipeline at a bounded rate and publishes its state to consumers.
package controller

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-proctor/common"
	"github.com/pkg/errors"
)

var (
	// ErrNotReady is returned when the detector's model has not finished loading.
	ErrNotReady = errors.New("controller: detector not ready")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("controller: scheduler already running")
	// ErrNoFrame is returned by a FrameSource that has nothing to hand out yet.
	ErrNoFrame = errors.New("controller: no frame available")
)

// Frame is a single frame of video.
type Frame struct {
	ID        int
	Image     image.Image
	Timestamp time.Time
}

// Detector turns a frame into raw detections. Implementations may be slow and
// may fail; a failure only skips the frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]common.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame Frame) ([]common.Detection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, frame Frame) ([]common.Detection, error) {
	return f(ctx, frame)
}

// FrameSource supplies the most recent frame on demand.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Readiness reports whether the detector's model is usable.
type Readiness interface {
	Loaded() bool
	Progress() int
}

// ModelStatus is the readiness of the detector as seen by consumers.
type ModelStatus struct {
	Loaded   bool `json:"loaded"`
	Progress int  `json:"progress"`
}

// OperationTimer times named pipeline stages.
type OperationTimer interface {
	StartOperation(name string) func()
}

type noopTimer struct{}

func (noopTimer) StartOperation(string) func() { return func() {} }
