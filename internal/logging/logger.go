package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level and output format for the global logger.
type Options struct {
	Level  string
	Format string
	App    string
	Out    io.Writer
}

// Configure installs the global zerolog logger and returns it.
func Configure(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format: %s", opts.Format)
	}

	zerolog.SetGlobalLevel(level)
	ctx := zerolog.New(out).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger, nil
}

// ConfigureTests quiets the global logger for tests. HAECCSTABLE_LOG_LEVEL
// raises it when debugging.
func ConfigureTests() {
	level := os.Getenv("HAECCSTABLE_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	if _, err := Configure(Options{Level: level, Format: "console"}); err != nil {
		Configure(Options{Level: "warn", Format: "console"})
	}
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "off", "none":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level: %s", s)
	}
	return level, nil
}
