package core

import "github.com/flowrelay/flowrelay/logging"

// LoggerAdapter wraps a logging.Logger and guarantees a non-nil logger by
// substituting the NoOp implementation when constructed with nil. Leaf
// packages embed it so logging calls never need nil checks.
type LoggerAdapter struct {
	logger logging.Logger
}

// NewLoggerAdapter constructs a LoggerAdapter with a non-nil logger.
func NewLoggerAdapter(l logging.Logger) LoggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return LoggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l LoggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l LoggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (l LoggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (l LoggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs an error message.
func (l LoggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
