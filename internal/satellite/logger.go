package satellite

import (
	"sync"

	"github.com/firewatch-ai/firewatch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the satellite package logger scoped to the satellite module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("satellite")
	})
	return serviceLogger
}
