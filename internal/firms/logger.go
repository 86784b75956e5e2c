package firms

import "github.com/firewatch-ai/firewatch/internal/logger"

// GetLogger returns the firms logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("firms")
}
