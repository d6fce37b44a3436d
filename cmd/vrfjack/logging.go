package main

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a stderr logger at the named level. Unknown levels fall
// back to info.
func newLogger(level string) *log.Logger {
	return newLoggerTo(os.Stderr, level)
}

func newLoggerTo(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}
