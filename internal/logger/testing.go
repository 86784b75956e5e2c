package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewSlogLogger returns a Logger writing JSON lines to w at the given level.
// Intended for tests and for embedding into callers that already own an io.Writer.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	l := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newJSONHandler(w, l, tz)),
		level:  l,
	}
}
