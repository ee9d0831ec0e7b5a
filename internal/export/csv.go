// Package export converts expenses to and from CSV.
package export

import (
	"fmt"
	"io"
	"strings"

	"expensetracker/internal/core"

	"github.com/gocarina/gocsv"
)

// Row is the CSV shape of one expense.
type Row struct {
	Date     string `csv:"date" json:"date"`
	Title    string `csv:"title" json:"title"`
	Amount   string `csv:"amount" json:"amount"`
	Category string `csv:"category" json:"category"`
	Notes    string `csv:"notes" json:"notes"`
	ID       string `csv:"id" json:"id"`
}

// RowFromExpense flattens e into a Row.
func RowFromExpense(e core.Expense) Row {
	return Row{
		Date:     e.OccurredOn.String(),
		Title:    e.Title,
		Amount:   core.FormatAmount(e.Amount),
		Category: e.Category,
		Notes:    e.Notes,
		ID:       e.ID,
	}
}

// WriteCSV writes expenses with a header line. An empty list still yields
// the header.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	rows := make([]*Row, 0, len(expenses))
	for _, e := range expenses {
		r := RowFromExpense(e)
		rows = append(rows, &r)
	}
	if len(rows) == 0 {
		_, err := io.WriteString(w, "date,title,amount,category,notes,id\n")
		return err
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ReadCSV parses rows written by WriteCSV. The id column is optional.
func ReadCSV(r io.Reader) ([]Row, error) {
	var rows []*Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row == nil || strings.TrimSpace(row.Title+row.Amount+row.Category) == "" {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}
