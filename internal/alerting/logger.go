package alerting

import "github.com/firewatch-ai/firewatch/internal/logger"

// GetLogger returns the alerting logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("alerting")
}
