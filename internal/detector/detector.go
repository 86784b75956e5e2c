// Package detector provides the fire/smoke object detector capability used by
// the verifier, the detection stream and the HTTP API, plus the satellite
// wildfire classifier.
package detector

import (
	"context"
	"sync"

	"github.com/firewatch-ai/firewatch/internal/errors"
)

// Detection is one object found in an image. BBox is xyxy in source image pixels.
type Detection struct {
	Class      int         `json:"class"`
	Confidence float32     `json:"confidence"`
	BBox       *[4]float32 `json:"bbox,omitempty"`
}

// Detector finds fire and smoke in an encoded (JPEG or PNG) image.
// Detect blocks until inference completes and returns only detections with
// confidence >= minConfidence. An empty slice means nothing was found.
type Detector interface {
	Detect(ctx context.Context, image []byte, minConfidence float32) ([]Detection, error)

	// ConcurrencySafe reports whether Detect may be called from several goroutines at once.
	ConcurrencySafe() bool
}

// ErrFatal marks detector failures that will recur for every input, such as a
// released interpreter. Streams stop on errors wrapping it instead of reporting
// them per frame.
var ErrFatal = errors.NewStd("detector is unusable")

// Serialize returns d unchanged when it is concurrency safe, otherwise a
// wrapper that holds one mutex around every Detect call.
func Serialize(d Detector) Detector {
	if d == nil || d.ConcurrencySafe() {
		return d
	}
	if _, ok := d.(*serialized); ok {
		return d
	}
	return &serialized{inner: d}
}

type serialized struct {
	mu    sync.Mutex
	inner Detector
}

func (s *serialized) Detect(ctx context.Context, image []byte, minConfidence float32) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Detect(ctx, image, minConfidence)
}

func (s *serialized) ConcurrencySafe() bool { return true }

// Func adapts a plain function into a concurrency-safe Detector.
type Func func(ctx context.Context, image []byte, minConfidence float32) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, image []byte, minConfidence float32) ([]Detection, error) {
	return f(ctx, image, minConfidence)
}

// ConcurrencySafe reports true; the function is responsible for its own locking.
func (f Func) ConcurrencySafe() bool { return true }

// MeanConfidence returns the mean confidence of dets, 0 for none.
func MeanConfidence(dets []Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dets {
		sum += float64(d.Confidence)
	}
	return sum / float64(len(dets))
}
