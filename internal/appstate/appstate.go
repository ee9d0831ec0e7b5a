// Package appstate persists the small pieces of application state that sit
// next to the expense records: the analysis credential, the bounded analysis
// history and the pending analysis queue.
//
// Values are stored as JSON under fixed keys of a ports.StateStore. A value
// that fails to decode is treated as absent so corrupt state heals itself on
// the next write.
package appstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"expensetracker/internal/ports"
)

// Keys used in the state store.
const (
	KeyCredential = "credential"
	KeyHistory    = "analysis_history"
	KeyPending    = "pending_queue"
)

// loadJSON decodes key into dst. It reports false when the key is missing or
// the stored value is corrupt.
func loadJSON(ctx context.Context, state ports.StateStore, key string, dst any) (bool, error) {
	raw, ok, err := state.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.WarnContext(ctx, "Discarding corrupt persisted state", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func saveJSON(ctx context.Context, state ports.StateStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := state.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
