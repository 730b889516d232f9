// Package logging provides structured logging for the Liz voice service.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates the application logger. With console enabled the output is
// human-readable; otherwise plain JSON lines go to stdout.
func New(level string, console bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	return zerolog.New(out).With().
		Timestamp().
		Str("app", "lizvoice").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
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
