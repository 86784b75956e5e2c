package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// SatelliteResult holds the two class probabilities of the satellite classifier.
type SatelliteResult struct {
	NoFire   float64 `json:"no_fire"`
	Wildfire float64 `json:"wildfire"`
}

// SatelliteClassifier labels a satellite tile as wildfire or no fire.
type SatelliteClassifier struct {
	mu          sync.Mutex
	interpreter *tflite.Interpreter
	model       *tflite.Model
	inputSize   int
	closed      bool
}

// NewSatelliteClassifier loads the two-class model at settings.ClassifierModelPath.
func NewSatelliteClassifier(settings conf.DetectorSettings) (*SatelliteClassifier, error) {
	interpreter, model, err := newInterpreter(settings.ClassifierModelPath, settings.Threads)
	if err != nil {
		return nil, err
	}

	input := interpreter.GetInputTensor(0)
	output := interpreter.GetOutputTensor(0)
	if input == nil || input.NumDims() != 4 || input.Dim(3) != 3 || output.Dim(output.NumDims()-1) != 2 {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("classifier must take NHWC RGB input and emit 2 classes").
			Component("detector").
			Category(errors.CategoryModelInit).
			Context("model_path", settings.ClassifierModelPath).
			Build()
	}

	c := &SatelliteClassifier{
		interpreter: interpreter,
		model:       model,
		inputSize:   input.Dim(1),
	}
	GetLogger().Info("satellite classifier initialized",
		logger.String("model", settings.ClassifierModelPath),
		logger.Int("input_size", c.inputSize))
	return c, nil
}

// Classify resizes the tile to the model input and returns softmax probabilities.
func (c *SatelliteClassifier) Classify(ctx context.Context, image []byte) (SatelliteResult, error) {
	if err := ctx.Err(); err != nil {
		return SatelliteResult{}, err
	}
	img, err := DecodeImage(image)
	if err != nil {
		return SatelliteResult{}, err
	}
	resized := resizeImage(img, c.inputSize, c.inputSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SatelliteResult{}, errors.New(ErrFatal).
			Component("detector").
			Category(errors.CategoryDetector).
			Context("reason", "classifier released").
			Build()
	}

	start := time.Now()
	if err := fillTensorNHWC(c.interpreter.GetInputTensor(0).Float32s(), resized); err != nil {
		return SatelliteResult{}, c.classifyError(err)
	}
	if status := c.interpreter.Invoke(); status != tflite.OK {
		return SatelliteResult{}, c.classifyError(fmt.Errorf("invoke failed with status %v", status))
	}
	probs := softmax(c.interpreter.GetOutputTensor(0).Float32s())
	if len(probs) < 2 {
		return SatelliteResult{}, c.classifyError(fmt.Errorf("classifier produced %d outputs", len(probs)))
	}

	GetLogger().Debug("satellite tile classified",
		logger.Float64("wildfire", probs[1]),
		logger.Duration("duration", time.Since(start)))
	return SatelliteResult{NoFire: probs[0], Wildfire: probs[1]}, nil
}

func (c *SatelliteClassifier) classifyError(err error) error {
	return errors.New(err).
		Component("detector").
		Category(errors.CategoryDetector).
		Context("model", "satellite_classifier").
		Build()
}

// Close releases the interpreter.
func (c *SatelliteClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.interpreter.Delete()
	c.model.Delete()
	return nil
}
