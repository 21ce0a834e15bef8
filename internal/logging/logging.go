// Package logging builds the slog loggers used across the client.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrEthical07/minidrive/jwt"
)

type Config struct {
	Level  string    `yaml:"level"`
	Format string    `yaml:"format"`
	Writer io.Writer `yaml:"-"`
}

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// New creates a logger from cfg. Output goes to stderr unless a writer is
// set, so command output on stdout stays clean.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	switch Format(strings.ToLower(strings.TrimSpace(cfg.Format))) {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ValidLevel reports whether level is one parseLevel understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func parseLevel(level string) slog.Leveler {
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

// WithComponent returns a logger annotated with the component field.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With("component", component)
}

// Token renders a bearer token as a short fingerprint attribute. Raw tokens
// never reach a log line.
func Token(token string) slog.Attr {
	if token == "" {
		return slog.String("token", "")
	}
	return slog.String("token", jwt.Fingerprint(token))
}
