package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"storefront/internal/model"
)

// DefaultKey is the slot the web storefront uses for its guest cart.
// Keeping the same key lets both read one cart when they share storage.
const DefaultKey = "mui-store-cart"

// Store reads and writes the guest cart. It never fails the caller:
// storage problems are logged and the cart degrades to empty.
type Store struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// New creates a Store over backend. An empty key uses DefaultKey.
func New(backend Backend, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{backend: backend, key: key, logger: logger}
}

// Key returns the storage slot name.
func (s *Store) Key() string { return s.key }

// Load returns the persisted lines. A missing slot, an unreadable backend, or
// an unparsable value all yield an empty cart.
func (s *Store) Load(ctx context.Context) []model.LocalLine {
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []model.LocalLine{}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "guest cart unreadable, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return []model.LocalLine{}
	}

	var lines []model.LocalLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		s.logger.WarnContext(ctx, "guest cart corrupted, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return []model.LocalLine{}
	}

	normalized, repaired := Normalize(lines)
	if repaired {
		s.logger.InfoContext(ctx, "guest cart repaired on load",
			slog.Int("stored_lines", len(lines)),
			slog.Int("kept_lines", len(normalized)),
		)
	}
	return normalized
}

// Save writes lines as a JSON array. Failures are logged and swallowed so a
// full or read-only disk never breaks the in-memory cart.
func (s *Store) Save(ctx context.Context, lines []model.LocalLine) {
	if lines == nil {
		lines = []model.LocalLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		s.logger.ErrorContext(ctx, "encoding guest cart failed", slog.String("error", err.Error()))
		return
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		s.logger.ErrorContext(ctx, "persisting guest cart failed",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
	}
}

// Clear persists an empty cart. The slot itself stays.
func (s *Store) Clear(ctx context.Context) {
	s.Save(ctx, []model.LocalLine{})
}

// Normalize repairs stored lines so they satisfy the cart invariants:
// duplicate products are coalesced by summing quantities, and lines with a
// non-positive product id or quantity are dropped. Order of first appearance
// is kept. repaired reports whether anything changed.
func Normalize(lines []model.LocalLine) (out []model.LocalLine, repaired bool) {
	out = make([]model.LocalLine, 0, len(lines))
	index := make(map[int64]int, len(lines))

	for _, l := range lines {
		if l.ProductID <= 0 || l.Quantity < 1 {
			repaired = true
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			repaired = true
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, repaired
}
