// Command capture records camera or video frames into a directory as
// frame-N.jpg so a session can be replayed with `go-proctor -frames`.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images"
	"github.com/nvr-ai/go-proctor/images/camera"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/pkg/errors"
)

func main() {
	var (
		capture  camera.Config
		out      string
		format   string
		count    int
		interval time.Duration
	)
	flag.IntVar(&capture.Device, "device", 0, "Camera device index")
	flag.StringVar(&capture.Video, "video", "", "Video file or stream URL instead of a camera")
	flag.StringVar(&capture.Resolution, "resolution", "", "Requested capture mode, e.g. 720p")
	flag.StringVar(&out, "out", "frames", "Output directory")
	flag.StringVar(&format, "format", "jpeg", "Output format: jpeg, png or webp")
	flag.IntVar(&count, "count", 0, "Stop after this many frames (0 records until interrupted)")
	flag.DurationVar(&interval, "interval", 150*time.Millisecond, "Minimum time between saved frames")
	flag.Parse()

	log.Init(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := record(ctx, capture, out, images.ImageFormat(format), count, interval); err != nil {
		fmt.Fprintf(os.Stderr, "capture: %v\n", err)
		os.Exit(1)
	}
}

func extension(format images.ImageFormat) (string, error) {
	switch format {
	case images.FormatJPEG:
		return ".jpg", nil
	case images.FormatPNG:
		return ".png", nil
	case images.FormatWebP:
		return ".webp", nil
	default:
		return "", errors.Errorf("unsupported format %q", format)
	}
}

func record(ctx context.Context, config camera.Config, out string, format images.ImageFormat, count int, interval time.Duration) error {
	ext, err := extension(format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", out)
	}

	source, err := images.OpenCapture(config)
	if err != nil {
		return err
	}
	defer source.Close()

	rate := controller.NewRateCounter(time.Second)
	var last time.Time
	saved := 0
	for count == 0 || saved < count {
		frame, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if !last.IsZero() && frame.Timestamp.Sub(last) < interval {
			continue
		}
		last = frame.Timestamp

		data, err := images.Encode(frame.Image, format)
		if err != nil {
			return err
		}
		path := filepath.Join(out, fmt.Sprintf("frame-%d%s", saved, ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		saved++

		fps := rate.Mark(frame.Timestamp)
		log.Debug("saved frame", "path", path, "fps", fps)
	}

	log.Info("capture finished", "frames", saved, "dir", out)
	return nil
}
