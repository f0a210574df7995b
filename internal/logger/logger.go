// ABOUTME: zerolog setup for the mixer binary
// ABOUTME: JSON or console output, installed as the global logger
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pid = os.Getpid()

// New returns a JSON logger on w and installs it globally
func New(w io.Writer, debug bool) zerolog.Logger {
	setLevel(debug)
	l := zerolog.New(w).With().Timestamp().Int("pid", pid).Logger()
	log.Logger = l
	return l
}

// NewConsole returns a human-readable logger on w and installs it globally
func NewConsole(w io.Writer, debug, noColor bool) zerolog.Logger {
	setLevel(debug)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05.0000",
		NoColor:    noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"c",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"c"},
	}
	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// Discard silences logging, for the terminal UI which owns the screen
func Discard() zerolog.Logger {
	l := zerolog.Nop()
	log.Logger = l
	return l
}

func setLevel(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
