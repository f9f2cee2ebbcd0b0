// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup configures the default logger. Console output goes to stderr so
// piped CLI output stays clean.
func Setup(level string) {
	lvl := log.ParseLevel(level)
	if level == "" {
		lvl = log.InfoLevel
	}
	log.DefaultLogger = log.Logger{
		Level:      lvl,
		Caller:     0,
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: false,
		},
	}
}
