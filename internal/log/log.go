// Package log provides the process-wide structured logger, backed by logrus.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

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

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefaultLogger()
	output *MultiWriter
)

// GetLogger returns the global logger. It is usable before Init.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the global logger with one built from cfg.
// It may be called again to apply a new configuration.
func Init(cfg Config) error {
	l, w, err := initByConfig(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	old := output
	logger, output = l, w
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Flush closes file appenders. The console appender keeps working.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if output != nil {
		_ = output.Close()
	}
}
