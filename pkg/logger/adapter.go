package logger

import (
	"github.com/robfig/cron/v3"
)

// NewCronLogger adapts Logger to the cron.Logger interface so schedule
// internals (like skipped overlapping runs) land in the main log.
func NewCronLogger(l *Logger) cron.Logger {
	return &cronLogger{l: l}
}

type cronLogger struct {
	l *Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Info("cron: "+msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	c.l.Error("cron: "+msg, args...)
}
