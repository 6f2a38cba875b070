package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// TimeFormat matches the timestamp prefix used in queue and output file names.
const TimeFormat = "2006-01-02_15-04-05"

// New builds the process logger. Development environments get human-readable console output.
func New(env string) zerolog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if env == "dev" || env == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	if env == "dev" || env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: TimeFormat, NoColor: w != os.Stdout})
	}
	return logger
}
