// Package stream runs the fire/smoke detector over a still image or every
// frame of a video and yields one result per unit as soon as it is ready.
package stream

import (
	"context"
	"io"
	"iter"
	"math"
	"os"
	"time"

	"github.com/firewatch-ai/firewatch/internal/detector"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
	"github.com/firewatch-ai/firewatch/internal/media"
	"github.com/firewatch-ai/firewatch/internal/observability/metrics"
)

// FrameResult is the detector outcome for one unit of media. Frame is 0 for
// a still image and counts from 1 for video frames.
type FrameResult struct {
	Frame         int                  `json:"frame"`
	TotalFrames   int                  `json:"total_frames"`
	Detections    []detector.Detection `json:"detections"`
	HasFire       bool                 `json:"has_fire"`
	Progress      float64              `json:"progress"`
	DetectorError string               `json:"detector_error,omitempty"`

	detectorErr error
}

// Streamer produces detection streams. It holds no per-stream state and can
// serve any number of streams; the detector is serialized if it needs to be.
type Streamer struct {
	detector detector.Detector
	opener   media.Opener
	metrics  *metrics.DetectorMetrics
	readFile func(string) ([]byte, error)
	log      logger.Logger
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithMetrics records frames and detections on m.
func WithMetrics(m *metrics.DetectorMetrics) Option {
	return func(s *Streamer) { s.metrics = m }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Streamer) { s.log = l }
}

// WithFileReader overrides how still images are read from disk.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(s *Streamer) { s.readFile = read }
}

// New creates a Streamer decoding video through opener.
func New(det detector.Detector, opener media.Opener, opts ...Option) *Streamer {
	s := &Streamer{
		detector: detector.Serialize(det),
		opener:   opener,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	return s
}

// Stream returns the lazy sequence of results for the media at path. The
// sequence ends after the last unit, or with exactly one non-nil error. Each
// unit is decoded and inspected only when the consumer asks for it; breaking
// out of the loop or cancelling ctx releases the decode session.
func (s *Streamer) Stream(ctx context.Context, path string, threshold float32) iter.Seq2[FrameResult, error] {
	return func(yield func(FrameResult, error) bool) {
		if s.metrics != nil {
			s.metrics.StreamStarted()
			defer s.metrics.StreamEnded()
		}
		start := time.Now()
		status := metrics.StatusSuccess
		defer func() {
			if s.metrics != nil {
				s.metrics.RecordOperation(metrics.OpStream, status)
				s.metrics.RecordDuration(metrics.OpStream, time.Since(start).Seconds())
			}
		}()

		var err error
		if media.KindOf(path) == media.KindVideo {
			err = s.streamVideo(ctx, path, threshold, yield)
		} else {
			err = s.streamImage(ctx, path, threshold, yield)
		}
		if err != nil {
			status = metrics.StatusError
			if s.metrics != nil {
				s.metrics.RecordError(metrics.OpStream, string(errors.CategoryOf(err)))
			}
			s.log.Warn("detection stream failed",
				logger.String("path", path),
				logger.Error(err))
			yield(FrameResult{}, err)
		}
	}
}

func (s *Streamer) streamImage(ctx context.Context, path string, threshold float32, yield func(FrameResult, error) bool) error {
	data, err := s.readFile(path)
	if err != nil {
		return errors.New(err).
			Component("stream").
			Category(errors.CategoryInput).
			Context("path", path).
			Build()
	}
	result, err := s.inspect(ctx, data, threshold, 0, 1)
	if err != nil {
		return err
	}
	result.Progress = 100
	yield(result, nil)
	return nil
}

func (s *Streamer) streamVideo(ctx context.Context, path string, threshold float32, yield func(FrameResult, error) bool) error {
	if s.opener == nil {
		return errors.Newf("no video decoder configured").
			Component("stream").
			Category(errors.CategoryConfiguration).
			Build()
	}
	src, err := s.opener.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.log.Debug("closing decode session", logger.Error(cerr))
		}
	}()

	total := src.TotalFrames()
	s.log.Debug("video stream opened",
		logger.String("path", path),
		logger.Int("total_frames", total))

	for frame := 1; ; frame++ {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Component("stream").
				Category(errors.CategoryCancellation).
				Context("frame", frame).
				Build()
		}
		data, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				// the session was torn down by the cancellation
				return errors.New(ctx.Err()).
					Component("stream").
					Category(errors.CategoryCancellation).
					Context("frame", frame).
					Build()
			}
			return err
		}

		result, err := s.inspect(ctx, data, threshold, frame, total)
		if err != nil {
			return err
		}
		result.Progress = progress(frame, total)
		if !yield(result, nil) {
			s.log.Debug("consumer stopped stream", logger.Int("frame", frame))
			return nil
		}
	}
}

// inspect runs the detector on one unit. Detector failures are reported on
// the result unless they are fatal, in which case they end the stream. A still
// image the detector cannot decode is bad input and also ends the stream.
func (s *Streamer) inspect(ctx context.Context, data []byte, threshold float32, frame, total int) (FrameResult, error) {
	result := FrameResult{
		Frame:       frame,
		TotalFrames: total,
		Detections:  []detector.Detection{},
	}

	start := time.Now()
	dets, err := s.detector.Detect(ctx, data, threshold)
	if s.metrics != nil {
		s.metrics.RecordDuration(metrics.OpFrame, time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, detector.ErrFatal) || ctx.Err() != nil {
			return result, err
		}
		if total == 1 && frame == 0 && errors.IsCategory(err, errors.CategoryInput) {
			return result, err
		}
		if s.metrics != nil {
			s.metrics.RecordOperation(metrics.OpFrame, metrics.StatusError)
			s.metrics.RecordError(metrics.OpFrame, string(errors.CategoryOf(err)))
		}
		s.log.Warn("detector failed on frame",
			logger.Int("frame", frame),
			logger.Error(err))
		result.DetectorError = err.Error()
		result.detectorErr = err
		return result, nil
	}

	if len(dets) > 0 {
		result.Detections = dets
		result.HasFire = true
	}
	if s.metrics != nil {
		s.metrics.RecordOperation(metrics.OpFrame, metrics.StatusSuccess)
		s.metrics.RecordFrame(result.HasFire)
		for _, d := range dets {
			s.metrics.RecordDetection(d.Class)
		}
	}
	return result, nil
}

// progress is the percentage of the probed frame count reached at frame,
// clamped to 100. An unknown count reports 100.
func progress(frame, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(frame) / float64(total) * 100
	return math.Min(100, math.Round(p*100)/100)
}

// DetectAll drains a stream and returns every detection of every unit, the
// whole-file form of Stream. A unit the detector failed on fails the call.
func (s *Streamer) DetectAll(ctx context.Context, path string, threshold float32) ([]detector.Detection, error) {
	all := []detector.Detection{}
	for result, err := range s.Stream(ctx, path, threshold) {
		if err != nil {
			return nil, err
		}
		if result.detectorErr != nil {
			return nil, result.detectorErr
		}
		all = append(all, result.Detections...)
	}
	return all, nil
}
