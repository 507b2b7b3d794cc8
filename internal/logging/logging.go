// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level   string // debug, info, warn, error
	Pretty  bool
	Output  io.Writer
	Service string
}

// Init builds the root logger, installs it as zerolog's global logger and
// as the default context logger, and returns it.
func Init(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	service := cfg.Service
	if service == "" {
		service = "investocrafy"
	}
	logger := zerolog.New(out).With().Timestamp().Str("service", service).Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}
