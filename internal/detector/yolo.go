package detector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// YOLO runs a fire/smoke YOLO model exported to TensorFlow Lite.
// A YOLO instance owns one interpreter and is not safe for concurrent use;
// wrap it with Serialize before sharing it.
type YOLO struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	model       *tflite.Model
	labels      []string
	inputSize   int
	iou         float32
	layout      outputLayout
	closed      bool
}

// NewYOLO loads the model at settings.ModelPath and allocates its tensors.
func NewYOLO(settings conf.DetectorSettings) (*YOLO, error) {
	start := time.Now()

	interpreter, model, err := newInterpreter(settings.ModelPath, settings.Threads)
	if err != nil {
		return nil, err
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 || input.Dim(3) != 3 {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("model input must be NHWC with 3 channels").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ModelPath).
			Build()
	}
	inputSize := input.Dim(1)
	if settings.InputSize > 0 && settings.InputSize != inputSize {
		GetLogger().Warn("configured input size differs from model, using model value",
			logger.Int("configured", settings.InputSize),
			logger.Int("model", inputSize))
	}

	output := interpreter.GetOutputTensor(0)
	dims := make([]int, output.NumDims())
	for i := range dims {
		dims[i] = output.Dim(i)
	}
	layout, err := resolveLayout(dims, len(settings.Labels))
	if err != nil {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ModelPath).
			Context("labels", len(settings.Labels)).
			Build()
	}

	y := &YOLO{
		interpreter: interpreter,
		model:       model,
		labels:      settings.Labels,
		inputSize:   inputSize,
		iou:         settings.IoUThreshold,
		layout:      layout,
	}

	GetLogger().Info("fire/smoke model initialized",
		logger.String("model", settings.ModelPath),
		logger.Int("input_size", inputSize),
		logger.Int("boxes", layout.boxes),
		logger.Int("classes", layout.numClasses),
		logger.Bool("objectness", layout.objectness),
		logger.Duration("load_time", time.Since(start)))
	return y, nil
}

// newInterpreter reads a model file and allocates an interpreter for it.
func newInterpreter(path string, threads int) (*tflite.Interpreter, *tflite.Model, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.New(fmt.Errorf("cannot read model file: %w", err)).
			Component("detector").
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, nil, errors.Newf("cannot load TensorFlow Lite model").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", path).
			Context("model_size_mb", len(data)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	options.SetNumThread(threadCount(threads))
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, nil, errors.Newf("cannot create interpreter").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", path).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, nil, errors.Newf("tensor allocation failed").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", path).
			Build()
	}
	return interpreter, model, nil
}

// threadCount limits configured threads to the CPU count; 0 means all CPUs.
func threadCount(configured int) int {
	cpus := runtime.NumCPU()
	if configured <= 0 || configured > cpus {
		return cpus
	}
	return configured
}

// Detect letterboxes the image to the model input, runs inference and returns
// detections in source image pixels, highest confidence first.
func (y *YOLO) Detect(ctx context.Context, image []byte, minConfidence float32) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := DecodeImage(image)
	if err != nil {
		return nil, err
	}
	canvas, lb := letterboxImage(img, y.inputSize)

	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return nil, errors.New(ErrFatal).
			Component("detector").
			Category(errors.CategoryDetector).
			Context("reason", "interpreter released").
			Build()
	}

	start := time.Now()
	if err := fillTensorNHWC(y.interpreter.GetInputTensor(0).Float32s(), canvas); err != nil {
		return nil, y.inferenceError(err)
	}
	if status := y.interpreter.Invoke(); status != tflite.OK {
		return nil, y.inferenceError(fmt.Errorf("invoke failed with status %v", status))
	}
	out := y.interpreter.GetOutputTensor(0).Float32s()
	cands, err := decodeOutput(out, y.layout, y.inputSize, minConfidence)
	if err != nil {
		return nil, y.inferenceError(err)
	}
	dets := toDetections(nms(cands, y.iou), lb)

	GetLogger().Trace("inference complete",
		logger.Int("candidates", len(cands)),
		logger.Int("detections", len(dets)),
		logger.Duration("duration", time.Since(start)))
	return dets, nil
}

func (y *YOLO) inferenceError(err error) error {
	return errors.New(err).
		Component("detector").
		Category(errors.CategoryDetector).
		Context("input_size", y.inputSize).
		Build()
}

// ConcurrencySafe reports false: the interpreter holds per-call tensor state.
func (y *YOLO) ConcurrencySafe() bool { return false }

// Labels returns the class names indexed by class id.
func (y *YOLO) Labels() []string { return y.labels }

// Close releases the interpreter. Later Detect calls fail with ErrFatal.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return nil
	}
	y.closed = true
	y.interpreter.Delete()
	y.model.Delete()
	return nil
}
