package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

// Store keeps expenses and application state in process memory.
type Store struct {
	mu    sync.Mutex
	seed  []string
	items map[string]core.Expense
	state map[string][]byte
}

func New(seedCategories []string) *Store {
	return &Store{
		seed:  dedupe(seedCategories),
		items: map[string]core.Expense{},
		state: map[string][]byte{},
	}
}

// NewFromFiles seeds category suggestions from base/seed_categories.txt.
func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []string{"Food", "Housing", "Transport"}
	}
	return New(cats)
}

// Insert implements ports.ExpenseWriter.
func (s *Store) Insert(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; ok {
		return fmt.Errorf("insert expense %s: duplicate id", e.ID)
	}
	s.items[e.ID] = e
	return nil
}

// Delete implements ports.ExpenseWriter.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("delete expense %s: %w", id, ports.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

// ListBetween implements ports.ExpenseLister.
func (s *Store) ListBetween(_ context.Context, from, to core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if e.OccurredOn.Before(from.Time) || e.OccurredOn.After(to.Time) {
			continue
		}
		out = append(out, e)
	}
	core.SortByDateDesc(out)
	return out, nil
}

// ListAll implements ports.ExpenseLister.
func (s *Store) ListAll(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	core.SortByDateDesc(out)
	return out, nil
}

// ListCategories returns the seeded categories plus every category in use.
func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append([]string(nil), s.seed...)
	for _, e := range s.items {
		all = append(all, e.Category)
	}
	out := dedupe(all)
	sort.Strings(out)
	return out, nil
}

// Get implements ports.StateStore.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements ports.StateStore.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = append([]byte(nil), value...)
	return nil
}

// DeleteState removes a state key. The expense Delete owns the port name,
// so State() adapts this for ports.StateStore.
func (s *Store) DeleteState(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, key)
	return nil
}

// State returns the key/value half of the store as a ports.StateStore.
func (s *Store) State() ports.StateStore {
	return stateView{s}
}

type stateView struct{ s *Store }

func (v stateView) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return v.s.Get(ctx, key)
}

func (v stateView) Put(ctx context.Context, key string, value []byte) error {
	return v.s.Put(ctx, key, value)
}

func (v stateView) Delete(ctx context.Context, key string) error {
	return v.s.DeleteState(ctx, key)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

var _ ports.ExpenseStore = (*Store)(nil)
