package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ExecutionProvider selects the hardware path ONNX Runtime uses.
type ExecutionProvider string

const (
	// ProviderCPU is the default CPU path.
	ProviderCPU ExecutionProvider = "cpu"
	// ProviderCoreML uses Apple's CoreML.
	ProviderCoreML ExecutionProvider = "coreml"
	// ProviderOpenVINO uses Intel's OpenVINO.
	ProviderOpenVINO ExecutionProvider = "openvino"
)

// SharedLibPath returns the default location of the ONNX Runtime shared library
// for this platform.
func SharedLibPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "windows":
		return "./third_party/onnxruntime.dll", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime build for %s/%s", runtime.GOOS, runtime.GOARCH)
}

var envMu sync.Mutex

// initEnvironment loads the shared library once per process.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		p, err := SharedLibPath()
		if err != nil {
			return err
		}
		libPath = p
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// session is an ONNX Runtime session bound to preallocated input and output tensors.
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newSessionOptions(config Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		return fail(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		return fail(err, "set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fail(err, "set graph optimization level")
	}

	switch config.Provider {
	case ProviderCPU, "":
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fail(err, "enable coreml")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}); err != nil {
			return fail(err, "enable openvino")
		}
	default:
		options.Destroy()
		return nil, errors.Errorf("unsupported execution provider %q", config.Provider)
	}
	return options, nil
}

// openSession allocates the tensors and loads the model.
func openSession(config Config, classes int) (*session, error) {
	size := int64(config.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+classes), int64(anchorCount(config.InputSize))))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := newSessionOptions(config)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	s, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "create session for %s", config.ModelPath)
	}
	return &session{session: s, input: input, output: output}, nil
}

func (s *session) run() error {
	return s.session.Run()
}

func (s *session) close() {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// anchorCount is the number of YOLO anchor points for a square input: one per
// cell of the stride 8, 16 and 32 grids.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		n += cells * cells
	}
	return n
}
