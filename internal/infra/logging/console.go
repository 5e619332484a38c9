package logging

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// NewConsole builds the human-facing logger. debug wins over level.
func NewConsole(w io.Writer, level string, debug bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "nixcfg",
		ReportTimestamp: debug,
	})
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}
