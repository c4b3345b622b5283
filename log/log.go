// Package log provides a leveled, structured logger used across the whole
// codebase. It is a thin wrapper around zerolog so callers never import the
// backend directly.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var (
	logger zerolog.Logger
	level  = LogLevelInfo
)

func init() {
	// A usable default so packages can log before Init is called.
	Init(LogLevelInfo, "stderr")
}

// Init initializes the global logger with the given level ("debug", "info",
// "warn" or "error") and output ("stdout", "stderr" or a file path).
func Init(logLevel, output string) {
	var out io.Writer
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		out = f
	}
	zl, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		zl = zerolog.InfoLevel
	}
	level = logLevel
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	logger = zerolog.New(cw).Level(zl).With().Timestamp().Logger()
}

// Level returns the configured log level string.
func Level() string {
	return level
}

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger {
	return &logger
}

func withFields(ev *zerolog.Event, keyvalues ...any) *zerolog.Event {
	for i := 0; i+1 < len(keyvalues); i += 2 {
		key, ok := keyvalues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvalues[i])
		}
		ev = ev.Interface(key, keyvalues[i+1])
	}
	return ev
}

// Debug logs a message at debug level.
func Debug(args ...any) { logger.Debug().Msg(fmt.Sprint(args...)) }

// Info logs a message at info level.
func Info(args ...any) { logger.Info().Msg(fmt.Sprint(args...)) }

// Warn logs a message at warning level.
func Warn(args ...any) { logger.Warn().Msg(fmt.Sprint(args...)) }

// Error logs a message at error level.
func Error(args ...any) { logger.Error().Msg(fmt.Sprint(args...)) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { logger.Debug().Msgf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { logger.Info().Msgf(format, args...) }

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...any) { logger.Warn().Msgf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { logger.Error().Msgf(format, args...) }

// Fatal logs a message and exits.
func Fatal(args ...any) {
	logger.Fatal().Msg(fmt.Sprint(args...))
}

// Fatalf logs a formatted message and exits.
func Fatalf(format string, args ...any) {
	logger.Fatal().Msgf(format, args...)
}

// Debugw logs a message at debug level with structured key/value pairs.
func Debugw(msg string, keyvalues ...any) {
	withFields(logger.Debug(), keyvalues...).Msg(msg)
}

// Infow logs a message at info level with structured key/value pairs.
func Infow(msg string, keyvalues ...any) {
	withFields(logger.Info(), keyvalues...).Msg(msg)
}

// Warnw logs a message at warning level with structured key/value pairs.
func Warnw(msg string, keyvalues ...any) {
	withFields(logger.Warn(), keyvalues...).Msg(msg)
}

// Errorw logs an error with a message at error level.
func Errorw(err error, msg string) {
	logger.Error().Err(err).Msg(msg)
}
