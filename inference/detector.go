package inference

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-proctor/common"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/models/postprocess"
	"github.com/pkg/errors"
)

// Config contains the model and runtime settings of the detector.
type Config struct {
	// ModelPath is the YOLO-family ONNX model file.
	ModelPath string `yaml:"path" json:"path"`
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string `yaml:"library_path" json:"library_path"`
	// InputSize is the square model input edge in pixels.
	InputSize int `yaml:"input_size" json:"input_size"`
	// Confidence is the minimum class score for a candidate box.
	Confidence float32 `yaml:"confidence" json:"confidence"`
	// NMS is the IoU above which a lower-scored box of the same class is dropped.
	NMS float32 `yaml:"nms" json:"nms"`
	// IntraOpThreads and InterOpThreads size the runtime thread pools. Zero uses the runtime default.
	IntraOpThreads int `yaml:"intra_op_threads" json:"intra_op_threads"`
	InterOpThreads int `yaml:"inter_op_threads" json:"inter_op_threads"`
	// Provider selects the execution provider.
	Provider ExecutionProvider `yaml:"provider" json:"provider"`
	// InputName and OutputName are the graph's tensor names.
	InputName  string `yaml:"input_name" json:"input_name"`
	OutputName string `yaml:"output_name" json:"output_name"`
}

// DefaultConfig returns settings for a stock 640px YOLOv8 export.
func DefaultConfig() Config {
	return Config{
		InputSize:  640,
		Confidence: 0.25,
		NMS:        0.45,
		Provider:   ProviderCPU,
		InputName:  "images",
		OutputName: "output0",
	}
}

// ONNXDetector runs a YOLO-family model through ONNX Runtime. Calls to Detect are
// serialized because the session's tensors are shared.
type ONNXDetector struct {
	config  Config
	classes *models.ClassSet
	loader  *Loader

	mu      sync.Mutex
	session *session
}

// NewONNXDetector creates an unloaded detector. Call Load, or LoadAsync on its
// Loader, before Detect.
//
// Arguments:
//   - config: Model and runtime settings.
//   - classes: The label table of the model's class rows.
//
// Returns:
//   - *ONNXDetector: The detector.
//
// @example
// det := inference.NewONNXDetector(cfg, models.COCO)
//
//	if err := det.Load(ctx); err != nil {
//		return err
//	}
//
// defer det.Close()
func NewONNXDetector(config Config, classes *models.ClassSet) *ONNXDetector {
	d := &ONNXDetector{config: config, classes: classes}
	d.loader = NewLoader(
		Stage{Name: "runtime", Progress: 10, Run: func(context.Context) error {
			return initEnvironment(config.LibraryPath)
		}},
		Stage{Name: "model", Progress: 30, Run: func(context.Context) error {
			_, err := os.Stat(config.ModelPath)
			return errors.Wrapf(err, "model %s", config.ModelPath)
		}},
		Stage{Name: "session", Progress: 100, Run: func(context.Context) error {
			s, err := openSession(config, classes.Len())
			if err != nil {
				return err
			}
			d.mu.Lock()
			d.session = s
			d.mu.Unlock()
			return nil
		}},
	)
	return d
}

// Loader exposes the loading progress; it satisfies controller.Readiness.
func (d *ONNXDetector) Loader() *Loader {
	return d.loader
}

// Load loads the runtime and the model.
func (d *ONNXDetector) Load(ctx context.Context) error {
	return d.loader.Load(ctx)
}

// Detect runs the model on one frame.
//
// Arguments:
//   - ctx: Checked before inference starts.
//   - frame: The frame; boxes are returned in its pixel coordinates.
//
// Returns:
//   - []common.Detection: The detections after non-maximum suppression.
//   - error: ErrModelNotLoaded, or a wrapped preprocessing or runtime error.
func (d *ONNXDetector) Detect(ctx context.Context, frame controller.Frame) ([]common.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Image == nil {
		return nil, errors.New("frame has no image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil || !d.loader.Loaded() {
		return nil, ErrModelNotLoaded
	}
	if err := Preprocess(frame.Image, d.config.InputSize, d.session.input.GetData()); err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}
	if err := d.session.run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	bounds := frame.Image.Bounds()
	return d.decode(d.session.output.GetData(), bounds.Dx(), bounds.Dy())
}

// decode turns the raw output tensor into detections in frame coordinates.
func (d *ONNXDetector) decode(output []float32, width, height int) ([]common.Detection, error) {
	candidates, err := postprocess.DecodeYOLO(output, d.classes.Len(), d.config.Confidence)
	if err != nil {
		return nil, errors.Wrap(err, "decode output")
	}
	kept := postprocess.ApplyGreedyNMS(candidates, postprocess.NMSConfig{
		IoUThreshold: d.config.NMS,
		ClassAware:   true,
	})

	sx := float32(width) / float32(d.config.InputSize)
	sy := float32(height) / float32(d.config.InputSize)

	detections := make([]common.Detection, 0, len(kept))
	for _, r := range kept {
		label, err := d.classes.Name(r.Class)
		if err != nil {
			continue
		}
		detections = append(detections, common.Detection{
			Label:      label,
			Confidence: r.Score,
			Box:        r.Box.Scale(sx, sy),
		})
	}
	return detections, nil
}

// Close releases the session. The detector must be loaded again before use.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.close()
		d.session = nil
	}
	d.loader.Unload()
	return nil
}
