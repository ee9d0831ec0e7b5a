package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the web handlers and
	// background drains.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert implements ports.ExpenseWriter
func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) error {
	err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		ID:         e.ID,
		Title:      e.Title,
		Amount:     core.FormatAmount(e.Amount),
		Category:   e.Category,
		OccurredOn: e.OccurredOn.String(),
		Notes:      e.Notes,
	})
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"title", e.Title,
		"amount", core.FormatAmount(e.Amount),
		"occurred_on", e.OccurredOn.String())

	return nil
}

// Delete implements ports.ExpenseWriter
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	n, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete expense %s: %w", id, ports.ErrNotFound)
	}
	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	return nil
}

// ListBetween implements ports.ExpenseLister
func (r *SQLiteRepository) ListBetween(ctx context.Context, from, to core.Date) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesBetween(ctx, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses between %s and %s: %w", from, to, err)
	}
	return toDomain(rows)
}

// ListAll implements ports.ExpenseLister
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListAllExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toDomain(rows)
}

// ListCategories implements ports.CategoryReader
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	cats, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// GetState reads one app_state value. A missing key is not an error.
func (r *SQLiteRepository) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.queries.GetState(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// PutState inserts or replaces one app_state value.
func (r *SQLiteRepository) PutState(ctx context.Context, key string, value []byte) error {
	if err := r.queries.PutState(ctx, key, value); err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

// DeleteState removes one app_state value.
func (r *SQLiteRepository) DeleteState(ctx context.Context, key string) error {
	if err := r.queries.DeleteState(ctx, key); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// State returns a ports.StateStore view of the repository.
func (r *SQLiteRepository) State() *StateAdapter {
	return &StateAdapter{repo: r}
}

// StateAdapter exposes the app_state table as a ports.StateStore.
type StateAdapter struct {
	repo *SQLiteRepository
}

func (a *StateAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return a.repo.GetState(ctx, key)
}

func (a *StateAdapter) Put(ctx context.Context, key string, value []byte) error {
	return a.repo.PutState(ctx, key, value)
}

func (a *StateAdapter) Delete(ctx context.Context, key string) error {
	return a.repo.DeleteState(ctx, key)
}

func toDomain(rows []Expense) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of expense %s: %w", row.ID, err)
		}
		date, err := core.ParseDate(row.OccurredOn)
		if err != nil {
			return nil, fmt.Errorf("parse date of expense %s: %w", row.ID, err)
		}
		out = append(out, core.Expense{
			ID:         row.ID,
			Title:      row.Title,
			Amount:     amount,
			Category:   row.Category,
			OccurredOn: date,
			Notes:      row.Notes,
		})
	}
	return out, nil
}

var (
	_ ports.ExpenseStore = (*SQLiteRepository)(nil)
	_ ports.StateStore   = (*StateAdapter)(nil)
)
