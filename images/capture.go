package images

import (
	"context"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images/camera"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CaptureSource reads frames from a camera or video file through OpenCV.
type CaptureSource struct {
	config camera.Config

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	next    int
}

// OpenCapture opens the configured camera or video.
//
// Arguments:
//   - config: The device or file to open.
//
// Returns:
//   - *CaptureSource: The open source; Close it when done.
//   - error: An error if the device or file cannot be opened.
//
// @example
// source, err := images.OpenCapture(camera.Config{Device: 0, Resolution: "720p"})
//
//	if err != nil {
//		return err
//	}
//
// defer source.Close()
func OpenCapture(config camera.Config) (*CaptureSource, error) {
	var (
		capture *gocv.VideoCapture
		err     error
	)
	if config.Video != "" {
		capture, err = gocv.OpenVideoCapture(config.Video)
	} else {
		capture, err = gocv.OpenVideoCapture(config.Device)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open video capture")
	}

	if config.Video == "" && config.Resolution != "" {
		res, ok := camera.Lookup(config.Resolution)
		if !ok {
			capture.Close()
			return nil, errors.Errorf("unknown capture resolution %q", config.Resolution)
		}
		capture.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
		log.Info("capture resolution requested", "resolution", res.String())
	}

	return &CaptureSource{config: config, capture: capture, mat: gocv.NewMat()}, nil
}

// Next reads the next frame. A failed or empty read returns controller.ErrNoFrame.
func (c *CaptureSource) Next(ctx context.Context) (controller.Frame, error) {
	if err := ctx.Err(); err != nil {
		return controller.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return controller.Frame{}, errors.New("capture closed")
	}

	ok := c.capture.Read(&c.mat)
	if !ok && c.config.Video != "" && c.config.Loop {
		c.capture.Set(gocv.VideoCapturePosFrames, 0)
		ok = c.capture.Read(&c.mat)
	}
	if !ok || c.mat.Empty() {
		return controller.Frame{}, errors.Wrap(controller.ErrNoFrame, "capture read")
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return controller.Frame{}, errors.Wrap(err, "convert frame")
	}

	frame := controller.Frame{ID: c.next, Image: img, Timestamp: time.Now()}
	c.next++
	return frame, nil
}

// Close releases the device.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	c.mat.Close()
	return err
}
