package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"

	"github.com/google/uuid"
)

// View selects which expenses a listing covers.
type View string

const (
	ViewMonth View = "monthly"
	ViewYear  View = "yearly"
	ViewAll   View = "all"
)

// ParseView maps user input to a View, defaulting to ViewMonth.
func ParseView(s string) View {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewYear:
		return ViewYear
	case ViewAll:
		return ViewAll
	default:
		return ViewMonth
	}
}

// ExpenseInput holds raw user input for a new expense.
type ExpenseInput struct {
	Title    string
	Amount   string
	Category string
	Date     string // YYYY-MM-DD, today when empty
	Notes    string
}

// ExpenseService validates and stores expenses, then announces them.
type ExpenseService struct {
	store  ports.ExpenseStore
	events EventPublisher
	now    func() time.Time
}

func NewExpenseService(store ports.ExpenseStore, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// CreateExpense parses in, assigns a fresh id and saves the expense
// locally. Event publishing failures are logged, not returned.
func (s *ExpenseService) CreateExpense(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	e, err := s.build(in)
	if err != nil {
		return core.Expense{}, &ValidationError{Reason: ReasonInvalidExpense, Err: err}
	}

	if err := s.store.Insert(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishExpenseCreated(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense created event", "id", e.ID, "error", err)
		}
	}
	return e, nil
}

func (s *ExpenseService) build(in ExpenseInput) (core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	date := core.DateOf(s.now())
	if strings.TrimSpace(in.Date) != "" {
		if date, err = core.ParseDate(in.Date); err != nil {
			return core.Expense{}, err
		}
	}
	e := core.Expense{
		ID:         uuid.NewString(),
		Title:      strings.TrimSpace(in.Title),
		Amount:     amount,
		Category:   strings.TrimSpace(in.Category),
		OccurredOn: date,
		Notes:      strings.TrimSpace(in.Notes),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// DeleteExpense removes an expense. ports.ErrNotFound is wrapped through.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishExpenseDeleted(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense deleted event", "id", id, "error", err)
		}
	}
	return nil
}

// ListExpenses returns the expenses in view relative to today, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, view View) ([]core.Expense, error) {
	today := core.DateOf(s.now())
	var (
		list []core.Expense
		err  error
	)
	switch view {
	case ViewAll:
		list, err = s.store.ListAll(ctx)
	case ViewYear:
		list, err = s.store.ListBetween(ctx, core.NewDate(today.Year(), 1, 1), core.NewDate(today.Year(), 12, 31))
	default:
		from, to := monthBounds(today.Year(), today.Month())
		list, err = s.store.ListBetween(ctx, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return list, nil
}

// MonthOverview aggregates one calendar month.
func (s *ExpenseService) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, core.ErrInvalidMonth
	}
	from, to := monthBounds(year, month)
	list, err := s.store.ListBetween(ctx, from, to)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview: %w", err)
	}
	return core.BuildMonthOverview(year, month, list), nil
}

// YearOverview aggregates one calendar year.
func (s *ExpenseService) YearOverview(ctx context.Context, year int) (core.YearOverview, error) {
	list, err := s.store.ListBetween(ctx, core.NewDate(year, 1, 1), core.NewDate(year, 12, 31))
	if err != nil {
		return core.YearOverview{}, fmt.Errorf("year overview: %w", err)
	}
	return core.BuildYearOverview(year, list), nil
}

// Categories lists known categories for form suggestions.
func (s *ExpenseService) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Today returns the service clock's current date.
func (s *ExpenseService) Today() core.Date {
	return core.DateOf(s.now())
}

func monthBounds(year, month int) (core.Date, core.Date) {
	first := core.NewDate(year, month, 1)
	last := core.Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}
