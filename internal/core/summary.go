package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Total      decimal.Decimal
	Count      int
	ByCategory []CategoryAmount
}

// MonthTotal is one bucket of a YearOverview.
type MonthTotal struct {
	Month int // 1-12
	Total decimal.Decimal
}

// YearOverview summarizes a calendar year with one bucket per month.
type YearOverview struct {
	Year       int
	Total      decimal.Decimal
	ByMonth    []MonthTotal // always 12 entries
	ByCategory []CategoryAmount
}

// BuildMonthOverview aggregates the expenses that fall in year/month.
// Expenses outside that month are ignored.
func BuildMonthOverview(year, month int, expenses []Expense) MonthOverview {
	ov := MonthOverview{Year: year, Month: month, Total: decimal.Zero}
	byCat := map[string]decimal.Decimal{}
	for _, e := range expenses {
		if e.OccurredOn.Year() != year || e.OccurredOn.Month() != month {
			continue
		}
		ov.Total = ov.Total.Add(e.Amount)
		ov.Count++
		byCat[e.Category] = byCat[e.Category].Add(e.Amount)
	}
	ov.ByCategory = sortedCategories(byCat)
	return ov
}

// BuildYearOverview aggregates the expenses that fall in year.
func BuildYearOverview(year int, expenses []Expense) YearOverview {
	ov := YearOverview{Year: year, Total: decimal.Zero, ByMonth: make([]MonthTotal, 12)}
	for i := range ov.ByMonth {
		ov.ByMonth[i] = MonthTotal{Month: i + 1, Total: decimal.Zero}
	}
	byCat := map[string]decimal.Decimal{}
	for _, e := range expenses {
		if e.OccurredOn.Year() != year {
			continue
		}
		m := e.OccurredOn.Month() - 1
		ov.ByMonth[m].Total = ov.ByMonth[m].Total.Add(e.Amount)
		ov.Total = ov.Total.Add(e.Amount)
		byCat[e.Category] = byCat[e.Category].Add(e.Amount)
	}
	ov.ByCategory = sortedCategories(byCat)
	return ov
}

// sortedCategories orders by amount descending, then name.
func sortedCategories(m map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(m))
	for name, amt := range m {
		out = append(out, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortByDateDesc orders expenses newest first, breaking ties by title.
func SortByDateDesc(expenses []Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i].OccurredOn, expenses[j].OccurredOn
		if !a.Equal(b.Time) {
			return a.After(b.Time)
		}
		return expenses[i].Title < expenses[j].Title
	})
}
