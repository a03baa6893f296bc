// Package logging builds the process logger: tinted text when APP_ENV=dev,
// JSON lines otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"telemetry-server/internal/config"
)

// New returns the logger for appName writing to stdout.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return NewTo(os.Stdout, cfg, version, appName)
}

// NewTo is New with an explicit destination. Tools whose stdout carries
// data log to stderr through it.
func NewTo(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if cfg.AppEnv == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  cfg.LogLevel <= slog.LevelDebug,
			TimeFormat: time.TimeOnly,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
		return slog.New(h).With("app", appName, "version", version)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: durationsAsMillis,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}

// Component scopes l to one subsystem, e.g. "mqtt" or "events".
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}

// durationsAsMillis emits time.Duration values as float milliseconds.
func durationsAsMillis(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.Float64(a.Key, float64(a.Value.Duration())/float64(time.Millisecond))
	}
	return a
}
