package util

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// PionLoggerFactory routes pion's internal logging (ICE, DTLS, SCTP) into
// the process zerolog sink so a single stream carries everything.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger returns a leveled logger scoped to the given pion subsystem.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l pionLogger) log(level zerolog.Level, msg string) {
	sink := Log()
	sink.WithLevel(level).Str("pion", l.scope).Msg(msg)
}

func (l pionLogger) Trace(msg string) { l.log(zerolog.TraceLevel, msg) }
func (l pionLogger) Debug(msg string) { l.log(zerolog.DebugLevel, msg) }
func (l pionLogger) Info(msg string)  { l.log(zerolog.InfoLevel, msg) }
func (l pionLogger) Warn(msg string)  { l.log(zerolog.WarnLevel, msg) }
func (l pionLogger) Error(msg string) { l.log(zerolog.ErrorLevel, msg) }

func (l pionLogger) Tracef(format string, args ...interface{}) {
	l.Trace(fmt.Sprintf(format, args...))
}

func (l pionLogger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l pionLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l pionLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l pionLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}
