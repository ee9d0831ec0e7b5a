package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"expensetracker/internal/config"
)

func TestOptionsFrom(t *testing.T) {
	if _, err := OptionsFrom(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := OptionsFrom(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	o, err := OptionsFrom(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", SeedDir: "seed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o != (Options{Kind: SQLite, SQLitePath: "x.db", SeedDir: "seed"}) {
		t.Fatalf("unexpected options %+v", o)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"memory", Options{Kind: Memory}, false},
		{"sqlite", Options{Kind: SQLite, SQLitePath: "a.db"}, false},
		{"sqlite without path", Options{Kind: SQLite}, true},
		{"unknown", Options{Kind: "sheets"}, true},
		{"empty", Options{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte("Books\nTravel\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Open(ctx, Options{Kind: Memory, SeedDir: dir}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("memory close: %v", err)
	}
	if err := b.Ready(ctx); err != nil {
		t.Errorf("memory backend should be ready: %v", err)
	}
	cats, err := b.Expenses.ListCategories(ctx)
	if err != nil || len(cats) != 2 || cats[0] != "Books" {
		t.Fatalf("expected seeded categories, got %v err=%v", cats, err)
	}
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tracker.db")
	b, err := Open(ctx, Options{Kind: SQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if b.Kind != SQLite {
		t.Errorf("Kind = %q", b.Kind)
	}
	if err := b.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := b.State.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put state: %v", err)
	}
	got, ok, err := b.State.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("expected stored state, got %q ok=%v err=%v", got, ok, err)
	}
}
