package logger

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// formatter is applied to loggers created after Setup.
var formatter = log.TextFormatter

// ParseFormatter maps a config name to a charm formatter.
func ParseFormatter(name string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("unknown log formatter %q", name)
	}
}

// Setup configures the global charm logger from config values.
// debug overrides level.
func Setup(level, format string, debug bool) error {
	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}
	if debug {
		lvl = log.DebugLevel
	}

	f, err := ParseFormatter(format)
	if err != nil {
		return err
	}
	formatter = f

	log.SetDefault(log.NewWithOptions(Output, log.Options{
		ReportTimestamp: true,
		ReportCaller:    debug,
		Formatter:       f,
		Level:           lvl,
	}))
	return nil
}
