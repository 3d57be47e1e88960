// Package logger provides structured logging via slog, grounded on the
// teacher's pkg/logger/logger.go (level/format/output config, lumberjack
// file rotation, request-id-style correlation via context.Context —
// here keyed by trial id instead of HTTP request id).
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/epistimio/orion-go/internal/config"
)

type contextKey string

const trialIDKey contextKey = "trial_id"

// New builds a *slog.Logger from a config.LogConfig: JSON or text handler,
// stdout/stderr/file output, file rotation via lumberjack when
// output=="file".
func New(cfg config.LogConfig) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := setupWriter(cfg)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler)
}

// ParseLevel parses a string log level to slog.Level, defaulting to Info on
// an unrecognized or empty value.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupWriter(cfg config.LogConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// WithTrialID returns a context carrying a trial id for log correlation,
// the worker-loop analogue of the teacher's request-id context key.
func WithTrialID(ctx context.Context, trialID string) context.Context {
	return context.WithValue(ctx, trialIDKey, trialID)
}

// FromContext returns logger with the context's trial id attached, if any.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(trialIDKey).(string); ok && id != "" {
		return base.With("trial_id", id)
	}
	return base
}
