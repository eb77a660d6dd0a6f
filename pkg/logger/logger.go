// Package logger configures the root logger for the forecast pipeline.
// Every component logger derives from the instance built here, so level and
// output format are decided exactly once at startup.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// serviceName is stamped on every line so pipeline output stays attributable
// when it shares a log sink with other services.
const serviceName = "prognos"

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console output for local runs, JSON otherwise
}

// New builds the root logger. An unknown level falls back to info rather
// than failing startup; the scheduled pipeline must come up even with a
// mistyped level in the environment.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// SetGlobalLogger routes the package-level zerolog sink through the
// configured logger so stray log.Logger usage in dependencies ends up in the
// same output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
