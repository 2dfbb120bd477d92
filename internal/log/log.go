// Package log provides the process-wide structured logger.
//
// The logger is a thin facade over logrus so that components depend on a
// stable interface rather than a concrete logging library. Output goes to
// stdout and, when configured, to a size-rotated file.
package log

import (
	"sync"
)

// Logger is the logging surface handed to every component.
type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newAdapter(defaultConfig())
)

// GetLogger returns the process logger. Before Init it returns a default
// stdout logger at info level.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger according to cfg. Safe to call once at
// startup; later calls reconfigure. SIGHUP handling uses SetLevel instead.
func Init(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	logger = newAdapter(cfg)
}

// SetLevel adjusts only the level of the current logger configuration.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	if a, ok := logger.(*logrusAdapter); ok {
		a.setLevel(level)
	}
}
