// Package logger provides the pipeline's structured logger: zerolog writing
// JSON (or pretty console output when Init's pretty flag is set) to stdout, initialized once
// and exposed through a small set of package-level helpers used by every
// stage for per-batch and per-error logging.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger at the given level ("debug", "info",
// "warn", "error"); pretty enables a human-readable console writer instead
// of JSON. Safe to call more than once — only the first call takes effect.
func Init(level string, pretty bool) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)

		var writer = os.Stdout
		if pretty {
			cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
			defaultLogger = zerolog.New(cw).With().Timestamp().Logger()
			return
		}
		defaultLogger = zerolog.New(writer).With().Timestamp().Logger()
	})
}

// Get returns the default logger, initializing it at info level if Init was
// never called.
func Get() zerolog.Logger {
	once.Do(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return defaultLogger
}

// Info logs an informational message with structured fields.
func Info(msg string, fields map[string]any) {
	evt := Get().Info()
	applyFields(evt, fields)
	evt.Msg(msg)
}

// Warn logs a warning message with structured fields.
func Warn(msg string, fields map[string]any) {
	evt := Get().Warn()
	applyFields(evt, fields)
	evt.Msg(msg)
}

// Error logs an error with structured fields. Called once per article-level
// terminal error, never per success, to avoid log flooding at scale.
func Error(msg string, err error, fields map[string]any) {
	evt := Get().Error()
	if err != nil {
		evt = evt.Err(err)
	}
	applyFields(evt, fields)
	evt.Msg(msg)
}

// Debug logs a debug-level message with structured fields.
func Debug(msg string, fields map[string]any) {
	evt := Get().Debug()
	applyFields(evt, fields)
	evt.Msg(msg)
}

func applyFields(evt *zerolog.Event, fields map[string]any) {
	for k, v := range fields {
		evt.Interface(k, v)
	}
}
