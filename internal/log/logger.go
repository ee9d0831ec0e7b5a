// Package log wraps log/slog with a component attribute, request scoped
// loggers and helpers for the events the app logs most.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that remembers its component.
type Logger struct {
	*slog.Logger
	base      *slog.Logger // without the component attribute
	component string
}

// Config selects the handler for New.
type Config struct {
	Level     slog.Level
	JSON      bool
	Component string
	Output    io.Writer
	// Handler, when set, wins over Level, JSON and Output.
	Handler slog.Handler
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Component: ComponentApp, Output: os.Stdout}
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func New(cfg Config) *Logger {
	h := cfg.Handler
	if h == nil {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		opts := &slog.HandlerOptions{Level: cfg.Level}
		if cfg.JSON {
			h = slog.NewJSONHandler(out, opts)
		} else {
			h = slog.NewTextHandler(out, opts)
		}
	}
	return wrap(slog.New(h), cfg.Component)
}

// NewText returns a text logger writing to w.
func NewText(w io.Writer, level slog.Level, component string) *Logger {
	return New(Config{Level: level, Component: component, Output: w})
}

func wrap(base *slog.Logger, component string) *Logger {
	l := &Logger{Logger: base, base: base, component: component}
	if component != "" {
		l.Logger = base.With(FieldComponent, component)
	}
	return l
}

// With returns a logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return wrap(l.base.With(args...), l.component)
}

// WithComponent replaces the component attribute.
func (l *Logger) WithComponent(component string) *Logger {
	return wrap(l.base, component)
}

func (l *Logger) Component() string { return l.component }

// SetDefault installs l as the slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
