package logger

import (
	"github.com/rs/zerolog"
)

// CronLogger adapts a zerolog.Logger to the robfig/cron Logger interface.
// Scheduler chatter is logged at debug level; job panics at error.
type CronLogger struct {
	log zerolog.Logger
}

// NewCronLogger wraps log for use with cron.WithLogger.
func NewCronLogger(log zerolog.Logger) CronLogger {
	return CronLogger{log: log}
}

// Info logs routine scheduler events.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

// Error logs scheduler failures, including recovered job panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
