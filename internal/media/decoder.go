package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// maxFrameSize caps a single encoded frame read from ffmpeg.
const maxFrameSize = 32 << 20

// FFmpeg opens decode sessions by piping MJPEG frames out of ffmpeg.
type FFmpeg struct {
	FfmpegPath   string
	FfprobePath  string
	ProbeTimeout time.Duration
	// Quality is the ffmpeg -q:v value for the MJPEG frames, 2 (best) to 31.
	Quality int
}

// NewFFmpeg builds an Opener from the media settings.
func NewFFmpeg(settings conf.MediaSettings) *FFmpeg {
	return &FFmpeg{
		FfmpegPath:   settings.FfmpegPath,
		FfprobePath:  settings.FfprobePath,
		ProbeTimeout: settings.ProbeTimeout,
		Quality:      3,
	}
}

// Open probes the frame count and starts ffmpeg. The returned source must be closed.
func (f *FFmpeg) Open(ctx context.Context, path string) (VideoSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component("media").
			Category(errors.CategoryInput).
			Context("operation", "open_video").
			FileContext(path, 0).
			Build()
	}

	total, err := ProbeFrameCount(ctx, f.FfprobePath, path, f.ProbeTimeout)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(f.FfmpegPath, //nolint:gosec // G204: binary path from configuration
		"-hide_banner",
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(max(2, f.Quality)),
		"pipe:1")
	setupProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, decodeError(err, path, 0)
	}
	s := &ffmpegSource{
		cmd:   cmd,
		path:  path,
		total: total,
		done:  make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.New(fmt.Errorf("cannot start ffmpeg: %w", err)).
			Component("media").
			Category(errors.CategoryDecoder).
			FileContext(path, info.Size()).
			Build()
	}

	s.scanner = bufio.NewScanner(stdout)
	s.scanner.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	s.scanner.Split(splitJPEG)

	// Kill ffmpeg if the caller's context ends while frames are being read.
	// The pending read then fails and the consumer reaps the process.
	go func() {
		select {
		case <-ctx.Done():
			if err := s.kill(); err != nil {
				GetLogger().Debug("killing ffmpeg on cancel", logger.Error(err))
			}
		case <-s.done:
		}
	}()

	GetLogger().Debug("decode session started",
		logger.String("path", path),
		logger.Int("frames", total),
		logger.Int64("size", info.Size()))
	return s, nil
}

type ffmpegSource struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	path    string
	total   int
	frames  int
	stderr  lockedBuffer

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	finished  bool

	mu     sync.Mutex
	reaped bool
}

func (s *ffmpegSource) TotalFrames() int { return s.total }

func (s *ffmpegSource) Next() ([]byte, error) {
	if s.finished {
		return nil, io.EOF
	}
	if s.scanner.Scan() {
		s.frames++
		frame := make([]byte, len(s.scanner.Bytes()))
		copy(frame, s.scanner.Bytes())
		return frame, nil
	}

	s.finished = true
	if err := s.scanner.Err(); err != nil {
		return nil, decodeError(err, s.path, s.frames)
	}
	if err := s.wait(); err != nil {
		return nil, decodeError(fmt.Errorf("ffmpeg exited: %w: %s", err, tail(s.stderr.String(), 512)), s.path, s.frames)
	}
	return nil, io.EOF
}

// wait reaps ffmpeg after it closed stdout.
func (s *ffmpegSource) wait() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.reap()
	})
	return err
}

// kill signals the process group without reaping it, so it is safe while
// Next is blocked on the stdout pipe. Wait is left to the reading side.
func (s *ffmpegSource) kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reaped {
		return nil
	}
	return killProcessGroup(s.cmd)
}

// reap waits for ffmpeg. Callers must have finished reading stdout.
func (s *ffmpegSource) reap() error {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.reaped = true
	s.mu.Unlock()
	close(s.done)
	return err
}

// Close kills and reaps ffmpeg. It must be called from the goroutine that
// calls Next, never concurrently with it.
func (s *ffmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.kill()
		// Wait returns the kill signal as an error; only reaping matters here.
		_ = s.reap()
		GetLogger().Debug("decode session closed",
			logger.String("path", s.path),
			logger.Int("frames_read", s.frames))
	})
	return s.closeErr
}

func decodeError(err error, path string, frame int) error {
	return errors.New(err).
		Component("media").
		Category(errors.CategoryDecoder).
		FileContext(path, 0).
		Context("frames_read", frame).
		Build()
}

// splitJPEG is a bufio.SplitFunc yielding complete JPEG images from ffmpeg's
// image2pipe MJPEG output. Bytes before a start-of-image marker are skipped.
// ffmpeg's encoder writes no thumbnails or other payloads carrying FFD9 in its
// headers, and entropy coded data escapes 0xFF, so the first end-of-image
// marker ends the image. Arbitrary JPEGs with embedded EXIF thumbnails would
// not split correctly.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start < 0 {
		if atEOF {
			if len(bytes.TrimSpace(data)) > 0 {
				return 0, nil, fmt.Errorf("%d trailing bytes without a JPEG start marker", len(data))
			}
			return len(data), nil, nil
		}
		// Keep a possible split marker byte.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end < 0 {
		if atEOF {
			return 0, nil, fmt.Errorf("truncated JPEG frame (%d bytes)", len(data)-start)
		}
		if start > 0 {
			return start, nil, nil
		}
		return 0, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// lockedBuffer collects ffmpeg stderr while the process runs.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Only the tail is ever reported.
	if b.buf.Len() > 64<<10 {
		b.buf.Reset()
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
