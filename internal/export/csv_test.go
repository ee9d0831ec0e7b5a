package export

import (
	"bytes"
	"strings"
	"testing"

	"expensetracker/internal/core"

	"github.com/shopspring/decimal"
)

func TestWriteCSV(t *testing.T) {
	list := []core.Expense{
		{ID: "1", Title: "Lunch, with team", Amount: decimal.RequireFromString("12.5"), Category: "Food", OccurredOn: core.NewDate(2025, 3, 1)},
		{ID: "2", Title: "Rent", Amount: decimal.RequireFromString("800"), Category: "Home", OccurredOn: core.NewDate(2025, 3, 2), Notes: "march"},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, list); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "date,title,amount,category,notes,id" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != `2025-03-01,"Lunch, with team",12.50,Food,,1` {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if buf.String() != "date,title,amount,category,notes,id\n" {
		t.Fatalf("expected header only, got %q", buf.String())
	}
}

func TestReadCSV(t *testing.T) {
	in := "date,title,amount,category,notes\n2025-01-02,Coffee,2.40,Food,\n,,,,\n2025-01-03,Book,15,Fun,gift\n"
	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].Title != "Book" || rows[1].Notes != "gift" || rows[1].ID != "" {
		t.Fatalf("unexpected row %+v", rows[1])
	}
}
