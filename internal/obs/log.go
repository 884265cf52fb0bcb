// Package obs holds the shared observability surface: the structured logger
// and the prometheus metrics registered by this service.
package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// SetLogger replaces the shared logger. Intended for main and tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	loggerOnce.Do(func() {})
	logger = l
}
