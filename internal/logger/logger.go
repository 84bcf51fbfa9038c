package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bilal/devstats/internal/config"
)

// Init configures the global logger and returns it. Unknown levels fall back
// to info; "warning" is accepted as an alias of warn.
func Init(lcfg config.LoggingConfig) zerolog.Logger {
	return InitWriter(lcfg, os.Stderr)
}

func InitWriter(lcfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level := strings.ToLower(strings.TrimSpace(lcfg.Level))
	if level == "warning" {
		level = "warn"
	}
	levelVal, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		levelVal = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(levelVal)

	if strings.ToLower(lcfg.Format) == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
	return log.Logger
}
