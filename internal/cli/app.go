package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/appstate"
	"expensetracker/internal/config"
	"expensetracker/internal/connectivity"
	applog "expensetracker/internal/log"
	"expensetracker/internal/openai"
	"expensetracker/internal/ports"
	"expensetracker/internal/services"
)

// App is what trackerctl commands operate on.
type App struct {
	Config   *config.Config
	Logger   *applog.Logger
	Expenses *services.ExpenseService
	Analysis *services.AnalysisService
	// Events is nil when AMQP is not configured or unreachable.
	Events *amqp.Client

	closers []func() error
}

// AppParts are the collaborators an App is assembled from.
type AppParts struct {
	Config   *config.Config
	Logger   *applog.Logger
	Expenses ports.ExpenseStore
	State    ports.StateStore
	Analyzer services.Analyzer
	Online   bool
	Events   *amqp.Client
}

// NewApp wires services over the given stores. The analysis service is not
// started, so nothing drains unless a command asks for it.
func NewApp(p AppParts) *App {
	var publisher services.EventPublisher
	if p.Events != nil {
		publisher = p.Events
	}
	monitor := connectivity.NewMonitor(p.Online, nil, 0)
	analysis := services.NewAnalysisService(
		p.Analyzer,
		appstate.NewCredentialStore(p.State),
		appstate.NewHistoryStore(p.State),
		appstate.NewPendingQueue(p.State),
		monitor,
		publisher,
	)
	app := &App{
		Config:   p.Config,
		Logger:   p.Logger,
		Expenses: services.NewExpenseService(p.Expenses, publisher),
		Analysis: analysis,
		Events:   p.Events,
	}
	app.closers = append(app.closers, func() error { analysis.Close(); return nil })
	if p.Events != nil {
		app.closers = append(app.closers, p.Events.Close)
	}
	return app
}

// Close releases everything the App opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenApp builds an App from the environment, the same way cmd/tracker
// does. Logs go to stderr so command output stays clean.
func OpenApp(ctx context.Context, opts *RootOptions) (*App, error) {
	LoadEnvFile()
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	logger := SetupLogger(cfg, os.Stderr, applog.ComponentCLI)

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var events *amqp.Client
	if cfg.AMQPURL != "" {
		if events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
			logger.Warn("AMQP unavailable, domain events disabled", "error", err)
			events = nil
		}
	}

	online := !opts.Offline
	if online && cfg.ProbeURL != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		online = connectivity.NewHTTPProber(cfg.ProbeURL, 5*time.Second).Probe(pctx)
		cancel()
	}

	app := NewApp(AppParts{
		Config:   cfg,
		Logger:   logger,
		Expenses: stores.Backend.Expenses,
		State:    stores.Backend.State,
		Analyzer: openai.NewClient(openai.Config{
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Prompt:  cfg.OpenAIPrompt,
			Timeout: cfg.OpenAITimeout,
		}, nil),
		Online: online,
		Events: events,
	})
	app.closers = append([]func() error{stores.Close}, app.closers...)
	return app, nil
}
