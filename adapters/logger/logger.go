package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New initializes a zerolog.Logger with standard settings.
// logLevel is an offset from info: -1 is debug, 1 is warn.
func New(logLevel int) zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, logLevel)
}

func NewWithWriter(w io.Writer, logLevel int) zerolog.Logger {
	return zerolog.New(w).
		Level(zerolog.InfoLevel+zerolog.Level(logLevel)).
		With().Timestamp().Int("pid", os.Getpid()).Logger()
}
