package hotspot

import (
	"sync"

	"github.com/firewatch-ai/firewatch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the hotspot package logger scoped to the hotspot module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("hotspot")
	})
	return serviceLogger
}
