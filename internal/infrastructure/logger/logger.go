// Package logger configures the pipeline's structured, JSON-lines logging
// via zerolog, per SPEC_FULL §1.1.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup builds a zerolog.Logger that writes JSON lines to w and mirrors
// warnings/errors to stderr. level is one of "debug", "info", "warn",
// "error" (case-insensitive), matching the teacher's LogLevel config field.
func Setup(level string, w io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	writer := w
	if w != os.Stderr {
		writer = zerolog.MultiLevelWriter(w, errorOnlyWriter{os.Stderr})
	}

	return zerolog.New(writer).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// errorOnlyWriter mirrors only warn/error level events to the wrapped
// writer, so the pipeline log file gets everything while stderr stays quiet
// on routine transitions.
type errorOnlyWriter struct {
	w io.Writer
}

func (e errorOnlyWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (e errorOnlyWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= zerolog.WarnLevel {
		return e.w.Write(p)
	}
	return len(p), nil
}
