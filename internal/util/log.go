package util

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "02 Jan 15:04:05",
	}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Log returns the process logger. Packages derive component loggers from it
// via Log().With().Str("component", ...).Logger().
func Log() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Leveled logging helpers. All output goes to stderr.

func LogDebug(format string, args ...interface{}) {
	l := Log()
	l.Debug().Msg(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	l := Log()
	l.Info().Msg(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	l := Log()
	l.Warn().Msg(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	l := Log()
	l.Error().Msg(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	logMu.Lock()
	defer logMu.Unlock()
	logger = logger.Level(zerolog.DebugLevel)
}
