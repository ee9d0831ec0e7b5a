package appstate

import (
	"context"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

// HistoryStore keeps the newest analyses first, capped at a fixed length.
type HistoryStore struct {
	mu    sync.Mutex
	state ports.StateStore
	limit int
}

func NewHistoryStore(state ports.StateStore) *HistoryStore {
	return &HistoryStore{state: state, limit: core.MaxHistoryEntries}
}

// List returns the history newest first.
func (h *HistoryStore) List(ctx context.Context) ([]core.AnalysisEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

// Append puts entry at the front and drops whatever falls past the limit.
// It returns the resulting history.
func (h *HistoryStore) Append(ctx context.Context, entry core.AnalysisEntry) ([]core.AnalysisEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	next := make([]core.AnalysisEntry, 0, len(current)+1)
	next = append(next, entry)
	next = append(next, current...)
	if len(next) > h.limit {
		next = next[:h.limit]
	}
	if err := saveJSON(ctx, h.state, KeyHistory, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (h *HistoryStore) load(ctx context.Context) ([]core.AnalysisEntry, error) {
	var entries []core.AnalysisEntry
	ok, err := loadJSON(ctx, h.state, KeyHistory, &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.AnalysisEntry{}, nil
	}
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}
	return entries, nil
}
