// Package media classifies uploaded media and decodes video files into a
// sequence of JPEG frames using ffprobe and ffmpeg.
package media

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
)

// Kind is the coarse media type of a file, decided by its extension.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "image"
}

// VideoExtensions lists the extensions treated as video. Everything else is
// handed to the detector as a still image.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"}

// KindOf returns KindVideo when path has one of VideoExtensions (case-insensitive).
func KindOf(path string) Kind {
	if slices.Contains(VideoExtensions, strings.ToLower(filepath.Ext(path))) {
		return KindVideo
	}
	return KindImage
}

// VideoSource yields encoded frames of one decode session in order.
// Next returns io.EOF after the last frame. Close releases the session and is
// safe to call more than once, but not concurrently with Next.
type VideoSource interface {
	// TotalFrames is the frame count probed when the session was opened, 0 if unknown.
	TotalFrames() int
	Next() ([]byte, error)
	Close() error
}

// Opener starts decode sessions.
type Opener interface {
	Open(ctx context.Context, path string) (VideoSource, error)
}
