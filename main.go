package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/config"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images"
	"github.com/nvr-ai/go-proctor/inference"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/profiler"
	"github.com/nvr-ai/go-proctor/server"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/nvr-ai/go-proctor/util"
	"github.com/pkg/errors"
)

// source is a frame source the process owns and must close.
type source interface {
	controller.FrameSource
	Close() error
}

// nopCloser adapts a source with nothing to release.
type nopCloser struct {
	controller.FrameSource
}

func (nopCloser) Close() error { return nil }

// latestFrame remembers the last frame handed to the pipeline so the preview
// window can draw over it.
type latestFrame struct {
	controller.FrameSource
	img atomic.Pointer[image.Image]
}

func (l *latestFrame) Next(ctx context.Context) (controller.Frame, error) {
	frame, err := l.FrameSource.Next(ctx)
	if err == nil {
		l.img.Store(&frame.Image)
	}
	return frame, err
}

func (l *latestFrame) Image() image.Image {
	if p := l.img.Load(); p != nil {
		return *p
	}
	return nil
}

func main() {
	var (
		configPath string
		modelPath  string
		libPath    string
		videoPath  string
		deviceID   int
		framesDir  string
		listen     string
		room       string
		logLevel   string
		identity   string
		preview    bool
		noServer   bool
		profile    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&modelPath, "model", "", "Path to a YOLO ONNX model (overrides model.path)")
	flag.StringVar(&libPath, "onnxruntime", "", "Path to the ONNX Runtime shared library (overrides model.library_path)")
	flag.StringVar(&videoPath, "video", "", "Video file or stream URL (overrides source.video)")
	flag.IntVar(&deviceID, "device", -1, "Camera device index (overrides source.device)")
	flag.StringVar(&framesDir, "frames", "", "Replay a directory of frames instead of a camera")
	flag.StringVar(&listen, "listen", "", "Dashboard listen address (overrides server.listen)")
	flag.StringVar(&room, "room", "", "Room label for the session summary")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&identity, "identity", "", "Identity scheme: proximity or positional")
	flag.BoolVar(&preview, "preview", false, "Show a preview window with the overlay")
	flag.BoolVar(&noServer, "no-server", false, "Disable the dashboard API")
	flag.BoolVar(&profile, "profile", false, "Log periodic runtime profiling reports")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(2)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model.ModelPath = modelPath
		case "onnxruntime":
			cfg.Model.LibraryPath = libPath
		case "video":
			cfg.Source.Video = videoPath
		case "device":
			cfg.Source.Device = deviceID
		case "frames":
			cfg.Source.FramesDir = framesDir
		case "listen":
			cfg.Server.Listen = listen
		case "room":
			cfg.Session.Room = room
		case "log-level":
			cfg.Log.Level = logLevel
		case "identity":
			cfg.Tracking.Identity = identity
		case "preview":
			cfg.Source.Preview = preview
		case "no-server":
			cfg.Server.Enabled = !noServer
		case "profile":
			cfg.Profiler.Enabled = profile
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("monitor stopped", "error", err)
		os.Exit(1)
	}
}

func openSource(cfg config.Config) (source, error) {
	if cfg.UsesDirectory() {
		dir, err := util.NewDirectorySource(cfg.Source.FramesDir, cfg.Source.Loop)
		if err != nil {
			return nil, err
		}
		log.Info("replaying frames", "dir", cfg.Source.FramesDir, "frames", dir.Len())
		return nopCloser{dir}, nil
	}

	capture, err := images.OpenCapture(cfg.Source.Config)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := openSource(cfg)
	if err != nil {
		return errors.Wrap(err, "open frame source")
	}
	defer src.Close()
	frames := &latestFrame{FrameSource: src}

	det := inference.NewONNXDetector(cfg.Model, models.COCO)
	defer det.Close()

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{ReportInterval: cfg.Profiler.ReportInterval})

	state := controller.NewState(cfg.Alerts)
	assigner, err := cfg.Assigner(state.Tracker)
	if err != nil {
		return err
	}
	pipeline := controller.NewPipeline(
		det,
		tracking.NewExtractor(cfg.Analysis.PersonLabel, assigner),
		behavior.NewAnalyzer(cfg.Analysis.Config),
		state,
		controller.WithStaleAfter(cfg.Tracking.StaleAfter),
		controller.WithOperationTimer(prof),
	)
	scheduler := controller.NewScheduler(pipeline, frames, cfg.SchedulerConfig(), controller.WithReadiness(det.Loader()))
	prof.AddMetricsCollector(scheduler)

	if cfg.Profiler.Enabled {
		prof.Start(ctx)
		defer prof.Stop()
	}

	serveErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := server.NewServer(scheduler)
		scheduler.OnSnapshot(srv.Publish)
		go func() { serveErr <- srv.ListenAndServe(ctx, cfg.Server.Listen) }()
	}

	var previews chan controller.Snapshot
	if cfg.Source.Preview {
		previews = make(chan controller.Snapshot, 1)
		scheduler.OnSnapshot(func(snap controller.Snapshot) {
			select {
			case previews <- snap:
			default:
			}
		})
	}

	log.Info("loading model", "path", cfg.Model.ModelPath, "provider", cfg.Model.Provider)
	loaded := det.Loader().LoadAsync(ctx)

	defer func() {
		if scheduler.Running() {
			scheduler.Stop()
		}
	}()

	var overlay *images.Overlay
	if previews != nil {
		overlay = images.NewOverlay("go-proctor")
		defer overlay.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-loaded:
			loaded = nil
			if err != nil {
				return errors.Wrap(err, "load model")
			}
			if err := scheduler.Start(ctx); err != nil {
				return errors.Wrap(err, "start scheduler")
			}

		case err := <-serveErr:
			if err != nil {
				return err
			}

		case snap := <-previews:
			if img := frames.Image(); img != nil {
				if err := overlay.Show(img, snap); err != nil {
					log.Warn("preview failed", "error", err)
				}
			}
		}
	}
}
