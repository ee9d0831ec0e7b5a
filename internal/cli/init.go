// Package cli provides the initialization shared by cmd/tracker and
// cmd/trackerctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"expensetracker/internal/appstate"
	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the logger described by cfg, writing to w, and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, w io.Writer, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		JSON:      cfg.LogFormat == "json",
		Component: component,
		Output:    w,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadConfig loads and validates configuration.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Stores groups the persistence used by both binaries.
type Stores struct {
	Backend *backend.Backend
	Creds   *appstate.CredentialStore
	History *appstate.HistoryStore
	Queue   *appstate.PendingQueue
}

// Close releases the backend.
func (s *Stores) Close() error { return s.Backend.Close() }

// OpenStores creates the configured backend and the application state
// stores on top of it.
func OpenStores(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*Stores, error) {
	opts, err := backend.OptionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.Open(ctx, opts, logger.WithComponent(applog.ComponentBackend).Logger)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return &Stores{
		Backend: res,
		Creds:   appstate.NewCredentialStore(res.State),
		History: appstate.NewHistoryStore(res.State),
		Queue:   appstate.NewPendingQueue(res.State),
	}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
