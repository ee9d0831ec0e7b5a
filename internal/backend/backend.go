// Package backend opens the storage selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expensetracker/internal/config"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

type Kind string

const (
	SQLite Kind = "sqlite"
	Memory Kind = "memory"
)

// Options selects and parameterizes a backend.
type Options struct {
	Kind       Kind
	SQLitePath string
	// SeedDir holds seed_categories.txt for the memory backend.
	SeedDir string
}

// OptionsFrom reads the backend settings out of the app config.
func OptionsFrom(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("app config is nil")
	}
	o := Options{Kind: Kind(cfg.DataBackend), SQLitePath: cfg.SQLiteDBPath, SeedDir: cfg.SeedDir}
	return o, o.Validate()
}

func (o Options) Validate() error {
	if _, ok := openers[o.Kind]; !ok {
		return fmt.Errorf("invalid backend type: %q", o.Kind)
	}
	if o.Kind == SQLite && o.SQLitePath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	return nil
}

// Backend is an opened store pair plus its lifecycle hooks.
type Backend struct {
	Kind     Kind
	Expenses ports.ExpenseStore
	State    ports.StateStore
	// Ready reports whether the store can serve requests.
	Ready func(ctx context.Context) error
	close func() error
}

// Close releases the backend. Safe on backends without resources.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

type opener func(ctx context.Context, o Options, logger *slog.Logger) (*Backend, error)

var openers = map[Kind]opener{
	SQLite: openSQLite,
	Memory: openMemory,
}

// Open validates o and opens the backend it names.
func Open(ctx context.Context, o Options, logger *slog.Logger) (*Backend, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return openers[o.Kind](ctx, o, logger)
}

func openSQLite(ctx context.Context, o Options, logger *slog.Logger) (*Backend, error) {
	repo, err := storage.NewSQLiteRepository(o.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite backend: %w", err)
	}
	version, _, err := storage.SchemaVersion(o.SQLitePath)
	if err != nil {
		logger.WarnContext(ctx, "Could not read schema version", "error", err)
	}
	logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", o.SQLitePath, "schema_version", version)
	return &Backend{
		Kind:     SQLite,
		Expenses: repo,
		State:    repo.State(),
		Ready:    repo.Ping,
		close:    repo.Close,
	}, nil
}

func openMemory(ctx context.Context, o Options, logger *slog.Logger) (*Backend, error) {
	dir := o.SeedDir
	if dir == "" {
		dir = "data"
	}
	store := memory.NewFromFiles(dir)
	logger.InfoContext(ctx, "Initialized memory backend", "seed_dir", dir)
	return &Backend{
		Kind:     Memory,
		Expenses: store,
		State:    store.State(),
		Ready:    func(context.Context) error { return nil },
	}, nil
}
