package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/godamri/helix-audit/pkg/telemetry"
)

type Config struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error" yaml:"level"`
	Format string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console" yaml:"format"`
	// Service is stamped on every record as "service".
	Service string `envconfig:"LOG_SERVICE" yaml:"service"`
}

// New builds the process logger on stdout.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
// Every handler is wrapped so records carry the active trace and span ids.
func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	return build(cfg, w, ParseLevel(cfg.Level))
}

// NewLeveled is New with the level held in a LevelVar, so a config reload
// can change verbosity of a running process with SetLevel.
func NewLeveled(cfg Config, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(cfg.Level))
	return build(cfg, w, lv), lv
}

func build(cfg Config, w io.Writer, level slog.Leveler) *slog.Logger {
	var handler slog.Handler

	if cfg.Format == "console" {
		// Pretty Print for Local Development
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		// JSON for Production (Machine Readable)
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	logger := slog.New(telemetry.NewOTelHandler(handler))
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
