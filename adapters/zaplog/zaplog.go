// Package zaplog adapts a zap.SugaredLogger to the authstate.Logger
// interface.
package zaplog

import (
	"go.uber.org/zap"
)

// Logger wraps a sugared zap logger.
type Logger struct {
	log *zap.SugaredLogger
}

// New wraps an existing zap logger.
func New(log *zap.Logger) *Logger {
	return &Logger{log: log.Sugar()}
}

// NewDevelopment builds a development-configured logger; it falls back to a
// no-op logger when construction fails.
func NewDevelopment() *Logger {
	log, err := zap.NewDevelopment()
	if err != nil {
		log = zap.NewNop()
	}
	return New(log)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log.Errorf(format, args...)
}
