package localstore

import (
	"context"
	"errors"
	"log/slog"
)

// TokenSlot persists the account session token next to the guest cart,
// under "<cart key>-session".
type TokenSlot struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// NewTokenSlot creates the session slot that pairs with a cart key.
func NewTokenSlot(backend Backend, cartKey string, logger *slog.Logger) *TokenSlot {
	if cartKey == "" {
		cartKey = DefaultKey
	}
	return &TokenSlot{backend: backend, key: cartKey + "-session", logger: logger}
}

// Load returns the stored token, or "" when there is none or it cannot be read.
func (t *TokenSlot) Load(ctx context.Context) string {
	token, err := t.backend.Get(ctx, t.key)
	if errors.Is(err, ErrNotFound) {
		return ""
	}
	if err != nil {
		t.logger.WarnContext(ctx, "session token unreadable", slog.String("error", err.Error()))
		return ""
	}
	return token
}

// Save stores token. An empty token deletes the slot.
func (t *TokenSlot) Save(ctx context.Context, token string) error {
	if token == "" {
		return t.backend.Delete(ctx, t.key)
	}
	return t.backend.Set(ctx, t.key, token)
}
