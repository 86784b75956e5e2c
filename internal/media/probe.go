package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// DefaultProbeTimeout bounds a single ffprobe run when none is configured.
const DefaultProbeTimeout = 15 * time.Second

type probeOutput struct {
	Streams []struct {
		NbReadPackets string `json:"nb_read_packets"`
		NbFrames      string `json:"nb_frames"`
	} `json:"streams"`
}

// parseFrameCount reads the frame count of the first video stream from ffprobe JSON.
// The packet count is exact for every container; nb_frames comes from the
// container header and is used when packets were not counted.
func parseFrameCount(data []byte) (int, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return 0, fmt.Errorf("no video stream found")
	}
	s := out.Streams[0]
	for _, v := range []string{s.NbReadPackets, s.NbFrames} {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, nil
}

// ProbeFrameCount runs ffprobe on path and returns the number of video frames,
// 0 when the container does not report one.
func ProbeFrameCount(ctx context.Context, ffprobePath, path string, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffprobePath, //nolint:gosec // G204: binary path from configuration
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,nb_frames",
		"-of", "json",
		path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, errors.New(fmt.Errorf("ffprobe timed out: %w", ctx.Err())).
				Component("media").
				Category(errors.CategoryTimeout).
				FileContext(path, 0).
				Timing("ffprobe", time.Since(start)).
				Build()
		}
		return 0, errors.New(fmt.Errorf("ffprobe failed: %w", err)).
			Component("media").
			Category(errors.CategoryInput).
			FileContext(path, 0).
			Context("stderr", tail(stderr.String(), 512)).
			Build()
	}

	n, err := parseFrameCount(stdout.Bytes())
	if err != nil {
		return 0, errors.New(err).
			Component("media").
			Category(errors.CategoryInput).
			FileContext(path, 0).
			Build()
	}

	GetLogger().Debug("video probed",
		logger.String("path", path),
		logger.Int("frames", n),
		logger.Duration("duration", time.Since(start)))
	return n, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
