package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps LOG_LEVEL style names onto zerolog levels.
func ParseLevel(name string, fallback zerolog.Level) zerolog.Level {
	switch strings.ToLower(name) {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return fallback
	}
}

// Init installs the global logger. Terminals get the console writer,
// everything else gets JSON lines.
func Init(out io.Writer, level zerolog.Level) zerolog.Logger {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

// InitFromEnv reads LOG_LEVEL and installs a logger writing to stderr.
func InitFromEnv(fallback zerolog.Level) zerolog.Logger {
	return Init(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL"), fallback))
}
