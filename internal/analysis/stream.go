package analysis

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/firewatch-ai/firewatch/internal/alerting"
	"github.com/firewatch-ai/firewatch/internal/conf"
	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/stream"
)

// Output formats of the stream command.
const (
	FormatNDJSON = "ndjson"
	FormatSSE    = "sse"
)

// ParseFormat maps a --format value to a wire format.
func ParseFormat(name string) (stream.Format, error) {
	switch strings.ToLower(name) {
	case "", FormatNDJSON:
		return stream.NDJSON, nil
	case FormatSSE:
		return stream.SSE, nil
	}
	return nil, errors.Newf("unknown output format %q, expected %s or %s", name, FormatNDJSON, FormatSSE).
		Component("analysis").
		Category(errors.CategoryValidation).
		Build()
}

// Stream runs detection over the image or video at path and writes one wire
// event per frame to w, then a done or error event. A threshold of 0 uses
// the configured stream threshold.
func Stream(ctx context.Context, c *Components, path string, threshold float32, format stream.Format, w io.Writer) error {
	if c.Streamer == nil {
		return errors.Newf("no fire/smoke detector model is loaded").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Context("model_path", c.Settings.Detector.ModelPath).
			Build()
	}
	if threshold <= 0 {
		threshold = c.Settings.Detector.StreamThreshold
	}
	if threshold <= 0 {
		threshold = conf.DefaultStreamThreshold
	}

	seq := alerting.Watch(ctx, c.Streamer.Stream(ctx, path, threshold), c.Publisher, filepath.Base(path))
	return stream.Pump(seq, stream.NewWriter(w, format))
}
