// Package logger provides the module-scoped logger used throughout the
// ingestion engine, backed by zerolog.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the module-chaining shape the rest of
// this codebase expects: New() for the root, Sub() to descend into a
// component without re-parsing the level each time.
type Logger struct {
	zl zerolog.Logger
}

// New creates the root Logger. level is one of DEBUG/INFO/WARN/ERROR,
// case-insensitive; unrecognized values fall back to INFO.
//
// Output is a human-readable console writer when stderr is a terminal and
// plain JSON otherwise, so piped/redirected runs stay machine-parseable.
func New(module string, level string) *Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	out := io.Writer(os.Stderr)
	if isTerminal(os.Stderr) {
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = os.Stderr
			cw.TimeFormat = "15:04:05.000"
		})
	}

	zl := zerolog.New(out).With().Timestamp().Str("module", module).Logger()
	return &Logger{zl: zl}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sub returns a child Logger scoped to a sub-component, tagging its
// entries with a "submodule" field next to the root's "module" field.
func (l *Logger) Sub(module string) *Logger {
	zl := l.zl.With().Str("submodule", module).Logger()
	return &Logger{zl: zl}
}

func (l *Logger) Debugf(msg string, args ...interface{}) { l.zl.Debug().Msgf(msg, args...) }
func (l *Logger) Infof(msg string, args ...interface{})  { l.zl.Info().Msgf(msg, args...) }
func (l *Logger) Warnf(msg string, args ...interface{})  { l.zl.Warn().Msgf(msg, args...) }
func (l *Logger) Errorf(msg string, args ...interface{}) { l.zl.Error().Msgf(msg, args...) }

// Zerolog exposes the underlying zerolog.Logger for callers that want
// structured fields instead of the *f helpers above.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }
