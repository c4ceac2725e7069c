// Package localcart is the in-memory guest cart backed by the local store.
package localcart

import (
	"context"
	"log/slog"
	"sync"

	"storefront/internal/localstore"
	"storefront/internal/model"
)

// Persister is the storage the manager writes through to.
// *localstore.Store satisfies it.
type Persister interface {
	Load(ctx context.Context) []model.LocalLine
	Save(ctx context.Context, lines []model.LocalLine)
}

// Manager owns the guest cart. Every mutation writes the whole cart back
// through the Persister before returning.
type Manager struct {
	mu          sync.Mutex
	store       Persister
	logger      *slog.Logger
	lines       []model.LocalLine
	initialized bool
	pulse       uint64
}

// New creates an uninitialized manager. Call Initialize once per session.
func New(store Persister, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		lines:  []model.LocalLine{},
	}
}

// Initialize loads the persisted cart. Only the first call reads storage;
// later calls are no-ops, so stale storage can never clobber newer in-memory state.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return
	}
	m.lines = m.store.Load(ctx)
	m.initialized = true

	m.logger.DebugContext(ctx, "guest cart loaded", slog.Int("lines", len(m.lines)))
}

// Initialized reports whether Initialize has run.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Add puts qty of a product into the cart, accumulating onto an existing line.
// The snapshot is only used when a new line is created.
func (m *Manager) Add(ctx context.Context, productID int64, qty int, snapshot model.ProductSnapshot) error {
	if productID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	if qty < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexOf(productID); i >= 0 {
		m.lines[i].Quantity += qty
	} else {
		snapshot.ID = productID
		m.lines = append(m.lines, model.LocalLine{
			ProductID: productID,
			Quantity:  qty,
			Product:   snapshot,
		})
	}
	m.persist(ctx)
	m.pulse++
	return nil
}

// UpdateQuantity sets a line's quantity. qty <= 0 removes the line.
// An absent product is a no-op and nothing is written.
func (m *Manager) UpdateQuantity(ctx context.Context, productID int64, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(productID)
	if i < 0 {
		return
	}
	if qty <= 0 {
		m.removeAt(i)
	} else {
		m.lines[i].Quantity = qty
	}
	m.persist(ctx)
}

// Remove deletes the line for productID if present.
func (m *Manager) Remove(ctx context.Context, productID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(productID)
	if i < 0 {
		return
	}
	m.removeAt(i)
	m.persist(ctx)
}

// Clear empties the cart and persists the empty array.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines = []model.LocalLine{}
	m.persist(ctx)
}

// Replace swaps in a whole cart, repairing duplicates and bad quantities.
func (m *Manager) Replace(ctx context.Context, lines []model.LocalLine) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lines, _ = localstore.Normalize(lines)
	m.persist(ctx)
}

// Items returns a copy of the current lines.
func (m *Manager) Items() []model.LocalLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.LocalLine, len(m.lines))
	copy(out, m.lines)
	return out
}

// Count is the sum of quantities.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, l := range m.lines {
		n += l.Quantity
	}
	return n
}

// Total is Σ quantity × snapshot price.
func (m *Manager) Total() model.Money {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := model.Zero
	for _, l := range m.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines) == 0
}

// Pulse is the add-to-cart animation counter. It grows by one per successful Add.
func (m *Manager) Pulse() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulse
}

func (m *Manager) indexOf(productID int64) int {
	for i, l := range m.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) removeAt(i int) {
	m.lines = append(m.lines[:i], m.lines[i+1:]...)
}

// persist must be called with mu held.
func (m *Manager) persist(ctx context.Context) {
	snapshot := make([]model.LocalLine, len(m.lines))
	copy(snapshot, m.lines)
	m.store.Save(ctx, snapshot)
}
