package ports

import (
	"context"
	"errors"

	"expensetracker/internal/core"
)

// ErrNotFound is returned when a record addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		Insert(ctx context.Context, e core.Expense) error
		Delete(ctx context.Context, id string) error
	}

	// ExpenseLister reads expenses back for views and aggregates.
	ExpenseLister interface {
		// ListBetween returns expenses with from <= OccurredOn <= to, newest first.
		ListBetween(ctx context.Context, from, to core.Date) ([]core.Expense, error)
		// ListAll returns every stored expense, newest first.
		ListAll(ctx context.Context) ([]core.Expense, error)
	}

	// CategoryReader lists the distinct categories used so far.
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]string, error)
	}

	ExpenseStore interface {
		ExpenseWriter
		ExpenseLister
		CategoryReader
	}

	// StateStore is a small durable key/value store for application state
	// such as the credential, the analysis history and the pending queue.
	StateStore interface {
		Get(ctx context.Context, key string) (value []byte, ok bool, err error)
		Put(ctx context.Context, key string, value []byte) error
		Delete(ctx context.Context, key string) error
	}
)
