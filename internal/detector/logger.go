package detector

import (
	"sync"

	"github.com/firewatch-ai/firewatch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the detector package logger scoped to the detector module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("detector")
	})
	return serviceLogger
}
