package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/export"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
	"expensetracker/internal/services"

	"github.com/shopspring/decimal"
)

const storeTimeout = 7 * time.Second

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	fields, err := ReadFields(r)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Parse expense body error", "error", err, applog.FieldPath, r.URL.Path)
		Fail(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}

	in := services.ExpenseInput{
		Title:    fields.Get("title"),
		Amount:   fields.Get("amount"),
		Category: fields.Get("category"),
		Date:     fields.Get("date"),
		Notes:    fields.Get("notes"),
	}

	e, err := s.expenses.CreateExpense(r.Context(), in)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			Fail(http.StatusUnprocessableEntity, verr.Error()).Write(w)
			return
		}
		s.events.LogError(r.Context(), "Failed to save expense", err, applog.ComponentExpense, applog.OpCreate,
			applog.NewFields().WithExpense("", in.Title, in.Amount, in.Category, in.Date))
		Fail(http.StatusInternalServerError, "Error saving expense").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalExpenses, 1)
	s.events.LogExpenseCreated(r.Context(), e)
	s.invalidate(e.OccurredOn)

	NewReply().
		ExpenseCreated(e.OccurredOn).
		ResetForm().
		Toast(ToastSuccess, fmt.Sprintf("Saved %s: %s (%s)", e.Title, formatAmount(e.Amount), e.Category)).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	if id == "" {
		Fail(http.StatusBadRequest, "Missing expense id").Write(w)
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			Fail(http.StatusNotFound, "Expense not found").Write(w)
			return
		}
		s.events.LogError(r.Context(), "Failed to delete expense", err, applog.ComponentExpense, applog.OpDelete,
			applog.NewFields().WithExpense(id, "", "", "", ""))
		Fail(http.StatusInternalServerError, "Error deleting expense").Write(w)
		return
	}

	s.logger.InfoContext(r.Context(), "Expense deleted successfully",
		applog.FieldExpenseID, id,
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpDelete)

	// The row's date is gone with it, so every cached aggregate may be stale.
	s.invalidateAll()

	NewReply().
		ExpenseDeleted(id).
		Toast(ToastSuccess, "Expense deleted").
		Write(w)
}

type expenseRow struct {
	ID       string
	Date     string
	Title    string
	Amount   string
	Category string
	Notes    string
}

func (s *Server) handleExpenseList(w http.ResponseWriter, r *http.Request) {
	view := services.ParseView(r.URL.Query().Get("view"))
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	list, err := s.expenses.ListExpenses(ctx, view)
	if err != nil {
		s.events.LogError(r.Context(), "List expenses error", err, applog.ComponentExpense, applog.OpList, nil)
		s.placeholder(w, "expense-list", "Error loading expenses")
		return
	}

	today := s.expenses.Today()
	data := struct {
		View  string
		Label string
		Rows  []expenseRow
		Total string
		Count int
	}{View: string(view), Count: len(list)}

	switch view {
	case services.ViewYear:
		data.Label = strconv.Itoa(today.Year())
	case services.ViewAll:
		data.Label = "All time"
	default:
		data.Label = monthName(today.Month()) + " " + strconv.Itoa(today.Year())
	}

	total := decimal.Zero
	for _, e := range list {
		total = total.Add(e.Amount)
		data.Rows = append(data.Rows, expenseRow{
			ID:       e.ID,
			Date:     e.OccurredOn.String(),
			Title:    e.Title,
			Amount:   formatAmount(e.Amount),
			Category: e.Category,
			Notes:    e.Notes,
		})
	}
	data.Total = formatAmount(total)

	s.render(w, r, "expenses.html", data)
}

func (s *Server) getMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	ov, _, err := s.overviewCache.GetOrLoad(monthKey(year, month), func() (core.MonthOverview, error) {
		cctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		return s.expenses.MonthOverview(cctx, year, month)
	})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview (year=%d, month=%d): %w", year, month, err)
	}
	return ov, nil
}

func (s *Server) getYearOverview(ctx context.Context, year int) (core.YearOverview, error) {
	ov, _, err := s.yearCache.GetOrLoad(strconv.Itoa(year), func() (core.YearOverview, error) {
		cctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		return s.expenses.YearOverview(cctx, year)
	})
	if err != nil {
		return core.YearOverview{}, fmt.Errorf("year overview (year=%d): %w", year, err)
	}
	return ov, nil
}

type barRow struct {
	Name   string
	Amount string
	Width  int
}

// handleMonthOverview renders the monthly overview partial
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	year, month := monthParams(r.URL.Query(), s.expenses.Today())
	ov, err := s.getMonthOverview(r.Context(), year, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Month overview error", "error", err, "year", year, "month", month)
		s.placeholder(w, "month-overview", "Error loading overview")
		return
	}

	prev := core.NewDate(year, month, 1).AddDate(0, -1, 0)
	next := core.NewDate(year, month, 1).AddDate(0, 1, 0)
	data := struct {
		Year, Month         int
		Title               string
		Total               string
		Count               int
		Rows                []barRow
		PrevYear, PrevMonth int
		NextYear, NextMonth int
	}{
		Year:      ov.Year,
		Month:     ov.Month,
		Title:     monthName(ov.Month) + " " + strconv.Itoa(ov.Year),
		Total:     formatAmount(ov.Total),
		Count:     ov.Count,
		PrevYear:  prev.Year(),
		PrevMonth: int(prev.Month()),
		NextYear:  next.Year(),
		NextMonth: int(next.Month()),
	}
	if len(ov.ByCategory) > 0 {
		peak := ov.ByCategory[0].Amount
		for _, c := range ov.ByCategory {
			data.Rows = append(data.Rows, barRow{Name: c.Name, Amount: formatAmount(c.Amount), Width: barWidth(c.Amount, peak)})
		}
	}

	s.render(w, r, "month_overview.html", data)
}

// handleYearOverview renders the yearly overview partial
func (s *Server) handleYearOverview(w http.ResponseWriter, r *http.Request) {
	year := yearParam(r.URL.Query(), s.expenses.Today())
	ov, err := s.getYearOverview(r.Context(), year)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Year overview error", "error", err, "year", year)
		s.placeholder(w, "year-overview", "Error loading overview")
		return
	}

	peak := decimal.Zero
	for _, m := range ov.ByMonth {
		if m.Total.GreaterThan(peak) {
			peak = m.Total
		}
	}

	data := struct {
		Year       int
		Total      string
		Months     []barRow
		Categories []barRow
	}{Year: ov.Year, Total: formatAmount(ov.Total)}
	for _, m := range ov.ByMonth {
		data.Months = append(data.Months, barRow{Name: monthName(m.Month)[:3], Amount: formatAmount(m.Total), Width: barWidth(m.Total, peak)})
	}
	if len(ov.ByCategory) > 0 {
		top := ov.ByCategory[0].Amount
		for _, c := range ov.ByCategory {
			data.Categories = append(data.Categories, barRow{Name: c.Name, Amount: formatAmount(c.Amount), Width: barWidth(c.Amount, top)})
		}
	}

	s.render(w, r, "year_overview.html", data)
}

// handleExportCSV streams the selected view as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	view := services.ParseView(r.URL.Query().Get("view"))
	if r.URL.Query().Get("view") == "" {
		view = services.ViewAll
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	list, err := s.expenses.ListExpenses(ctx, view)
	if err != nil {
		s.events.LogError(r.Context(), "Export expenses error", err, applog.ComponentExpense, applog.OpExport, nil)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses-%s.csv"`, view))
	if err := export.WriteCSV(w, list); err != nil {
		s.events.LogError(r.Context(), "Write CSV error", err, applog.ComponentExpense, applog.OpExport, nil)
	}
}

// placeholder answers a partial request with a short inline message so the
// surrounding page keeps working.
func (s *Server) placeholder(w http.ResponseWriter, id, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<section id="%s"><div class="placeholder">%s</div></section>`, id, msg)
}
