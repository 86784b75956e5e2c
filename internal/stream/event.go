package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// Event kinds on the wire.
const (
	KindFrame = "frame"
	KindDone  = "done"
	KindError = "error"
)

type doneEvent struct {
	Done bool `json:"done"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// Format frames one JSON payload for a transport.
type Format func(payload []byte) []byte

// SSE frames payloads as server-sent events.
func SSE(payload []byte) []byte {
	return fmt.Appendf(nil, "data: %s\n\n", payload)
}

// NDJSON frames payloads as newline-delimited JSON.
func NDJSON(payload []byte) []byte {
	return append(append([]byte(nil), payload...), '\n')
}

// Writer encodes stream events onto an io.Writer, flushing after every event
// when the writer supports it. It is safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	format   Format
	observer func(kind string)
}

// NewWriter returns a Writer framing events with format.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// OnEvent registers a callback invoked with the kind of every written event.
func (w *Writer) OnEvent(fn func(kind string)) *Writer {
	w.observer = fn
	return w
}

// WriteFrame writes one frame result.
func (w *Writer) WriteFrame(r FrameResult) error {
	return w.write(KindFrame, r)
}

// WriteDone writes the normal completion terminator {"done": true}.
func (w *Writer) WriteDone() error {
	return w.write(KindDone, doneEvent{Done: true})
}

// WriteError writes the failure terminator {"error": "<message>"}.
func (w *Writer) WriteError(err error) error {
	return w.write(KindError, errorEvent{Error: err.Error()})
}

func (w *Writer) write(kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(w.format(payload)); err != nil {
		return errors.New(fmt.Errorf("failed to write %s event: %w", kind, err)).
			Component("stream").
			Category(errors.CategoryNetwork).
			Build()
	}
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
	if w.observer != nil {
		w.observer(kind)
	}
	return nil
}

// Pump drains seq into w and writes exactly one terminator: done after the
// last result, or error when the stream fails. A failed write stops the
// stream, which releases its decode session, and is returned. Stream
// failures are delivered to the client and not returned.
func Pump(seq iter.Seq2[FrameResult, error], w *Writer) error {
	frames := 0
	for result, err := range seq {
		if err != nil {
			if werr := w.WriteError(err); werr != nil {
				return werr
			}
			GetLogger().Debug("stream ended with error event", logger.Int("frames", frames))
			return nil
		}
		if werr := w.WriteFrame(result); werr != nil {
			return werr
		}
		frames++
	}
	GetLogger().Debug("stream completed", logger.Int("frames", frames))
	return w.WriteDone()
}
