package media

import "github.com/firewatch-ai/firewatch/internal/logger"

// GetLogger returns the media logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("media")
}
