package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Expense mirrors a row of the expenses table.
type Expense struct {
	ID         string
	Title      string
	Amount     string
	Category   string
	OccurredOn string
	Notes      string
}

const createExpense = `INSERT INTO expenses (id, title, amount, category, occurred_on, notes)
VALUES (?, ?, ?, ?, ?, ?)`

type CreateExpenseParams struct {
	ID         string
	Title      string
	Amount     string
	Category   string
	OccurredOn string
	Notes      string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) error {
	_, err := q.db.ExecContext(ctx, createExpense,
		arg.ID,
		arg.Title,
		arg.Amount,
		arg.Category,
		arg.OccurredOn,
		arg.Notes,
	)
	return err
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpensesBetween = `SELECT id, title, amount, category, occurred_on, notes
FROM expenses
WHERE occurred_on >= ? AND occurred_on <= ?
ORDER BY occurred_on DESC, title ASC`

func (q *Queries) ListExpensesBetween(ctx context.Context, from, to string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesBetween, from, to)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const listAllExpenses = `SELECT id, title, amount, category, occurred_on, notes
FROM expenses
ORDER BY occurred_on DESC, title ASC`

func (q *Queries) ListAllExpenses(ctx context.Context) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listAllExpenses)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

const listCategories = `SELECT DISTINCT category FROM expenses ORDER BY category`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getState = `SELECT value FROM app_state WHERE key = ?`

func (q *Queries) GetState(ctx context.Context, key string) ([]byte, error) {
	row := q.db.QueryRowContext(ctx, getState, key)
	var value []byte
	err := row.Scan(&value)
	return value, err
}

const putState = `INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

func (q *Queries) PutState(ctx context.Context, key string, value []byte) error {
	_, err := q.db.ExecContext(ctx, putState, key, value)
	return err
}

const deleteState = `DELETE FROM app_state WHERE key = ?`

func (q *Queries) DeleteState(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteState, key)
	return err
}

func scanExpenses(rows *sql.Rows) ([]Expense, error) {
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var i Expense
		if err := rows.Scan(
			&i.ID,
			&i.Title,
			&i.Amount,
			&i.Category,
			&i.OccurredOn,
			&i.Notes,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
