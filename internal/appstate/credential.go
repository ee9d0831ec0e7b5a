package appstate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expensetracker/internal/ports"
)

// ErrEmptyCredential is returned when saving a blank key.
var ErrEmptyCredential = errors.New("credential is empty")

// CredentialStore holds the single analysis API key.
type CredentialStore struct {
	state ports.StateStore
}

func NewCredentialStore(state ports.StateStore) *CredentialStore {
	return &CredentialStore{state: state}
}

// Get returns the stored key. A blank stored value counts as absent.
func (c *CredentialStore) Get(ctx context.Context) (string, bool, error) {
	raw, ok, err := c.state.Get(ctx, KeyCredential)
	if err != nil {
		return "", false, fmt.Errorf("read credential: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if !ok || key == "" {
		return "", false, nil
	}
	return key, true, nil
}

// Save trims and stores key, replacing any previous value.
func (c *CredentialStore) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyCredential
	}
	if err := c.state.Put(ctx, KeyCredential, []byte(key)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Clear removes the stored key.
func (c *CredentialStore) Clear(ctx context.Context) error {
	if err := c.state.Delete(ctx, KeyCredential); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Mask renders a key for display, keeping only its last four characters.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("•", len(runes))
	}
	return strings.Repeat("•", 8) + string(runes[len(runes)-4:])
}
