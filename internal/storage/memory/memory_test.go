package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"

	"github.com/shopspring/decimal"
)

func expense(id string, d core.Date, cat string) core.Expense {
	return core.Expense{ID: id, Title: "t" + id, Amount: decimal.NewFromInt(1), Category: cat, OccurredOn: d}
}

func TestMemoryStoreInsertListDelete(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	for _, e := range []core.Expense{
		expense("a", core.NewDate(2025, 1, 10), "Food"),
		expense("b", core.NewDate(2025, 2, 1), "Rent"),
		expense("c", core.NewDate(2025, 1, 31), "Food"),
	} {
		if err := s.Insert(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}
	if err := s.Insert(ctx, expense("a", core.NewDate(2025, 1, 1), "X")); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := s.Insert(ctx, core.Expense{ID: "bad"}); err == nil {
		t.Fatalf("expected validation error")
	}

	jan, _ := s.ListBetween(ctx, core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))
	if len(jan) != 2 || jan[0].ID != "c" || jan[1].ID != "a" {
		t.Fatalf("unexpected january list: %+v", jan)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(all))
	}
}

func TestMemoryStoreState(t *testing.T) {
	ctx := context.Background()
	st := New(nil).State()
	buf := []byte("v")
	if err := st.Put(ctx, "k", buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	buf[0] = 'x'
	got, ok, _ := st.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected stored copy, got %q ok=%v", got, ok)
	}
	_ = st.Delete(ctx, "k")
	if _, ok, _ := st.Get(ctx, "k"); ok {
		t.Fatalf("expected key removed")
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	cats, _ := s.ListCategories(context.Background())
	if len(cats) == 0 {
		t.Fatalf("expected defaults when files missing")
	}

	content := "# header\nB\nA\nB\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s = NewFromFiles(dir)
	_ = s.Insert(context.Background(), expense("z", core.NewDate(2025, 1, 1), "C"))
	cats, _ = s.ListCategories(context.Background())
	if len(cats) != 3 || cats[0] != "A" || cats[1] != "B" || cats[2] != "C" {
		t.Fatalf("unexpected categories: %v", cats)
	}
}
