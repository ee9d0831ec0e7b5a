package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/connectivity"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/openai"
	"expensetracker/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		applog.NewText(os.Stderr, applog.ParseLevel("info"), applog.ComponentApp).
			Error("Configuration error", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, os.Stdout, applog.ComponentApp)

	if err := run(cfg, logger); err != nil {
		logger.Error("Tracker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	stores, err := cli.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// Events are best effort; the tracker keeps working without them.
			logger.Warn("AMQP unavailable, domain events disabled",
				"error", err,
				applog.FieldComponent, applog.ComponentAMQP)
		} else {
			defer client.Close()
			events = client
			logger.Info("Publishing domain events", "exchange", cfg.AMQPExchange)
		}
	}

	analyzer := openai.NewClient(openai.Config{
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Prompt:  cfg.OpenAIPrompt,
		Timeout: cfg.OpenAITimeout,
	}, nil)

	var prober connectivity.Prober
	if cfg.ProbeURL != "" {
		prober = connectivity.NewHTTPProber(cfg.ProbeURL, 5*time.Second)
	}
	monitor := connectivity.NewMonitor(true, prober, cfg.ProbeInterval)

	expenses := services.NewExpenseService(stores.Backend.Expenses, events)
	analysis := services.NewAnalysisService(analyzer, stores.Creds, stores.History, stores.Queue, monitor, events)
	analysis.Start(ctx)
	defer analysis.Close()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:     expenses,
		Analysis:     analysis,
		Connectivity: monitor,
		Ready:        stores.Backend.Ready,
		Logger:       logger,
	})
	srv.ReadTimeout = 30 * time.Second
	// Left unset so event streams and long analyses are not cut off.
	srv.WriteTimeout = 0
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tracker server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"model", analyzer.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
