package remotecart

import (
	"context"
	"sync"

	"storefront/internal/model"
)

// Mock implements Cart for testing.
// Each method can be configured via function fields; Lines returns
// LinesValue unless LinesFunc is set. Calls are counted per method.
type Mock struct {
	ListFunc   func(ctx context.Context) ([]model.ServerLine, error)
	LinesFunc  func() []model.ServerLine
	AddFunc    func(ctx context.Context, productID int64, qty int) (model.ServerLine, error)
	UpdateFunc func(ctx context.Context, lineID int64, qty int) (model.ServerLine, error)
	RemoveFunc func(ctx context.Context, lineID int64) error
	MergeFunc  func(ctx context.Context, entries []model.MergeEntry) ([]model.ServerLine, error)

	LinesValue   []model.ServerLine
	LoadingValue bool

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times method was invoked.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// List calls ListFunc or returns LinesValue.
func (m *Mock) List(ctx context.Context) ([]model.ServerLine, error) {
	m.record("List")
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return m.Lines(), nil
}

// Lines calls LinesFunc or returns LinesValue.
func (m *Mock) Lines() []model.ServerLine {
	if m.LinesFunc != nil {
		return m.LinesFunc()
	}
	return append([]model.ServerLine{}, m.LinesValue...)
}

func (m *Mock) Loading() bool { return m.LoadingValue }

// Add calls AddFunc or echoes a new line.
func (m *Mock) Add(ctx context.Context, productID int64, qty int) (model.ServerLine, error) {
	m.record("Add")
	if m.AddFunc != nil {
		return m.AddFunc(ctx, productID, qty)
	}
	return model.ServerLine{ProductID: productID, Quantity: qty}, nil
}

// Update calls UpdateFunc or echoes the line.
func (m *Mock) Update(ctx context.Context, lineID int64, qty int) (model.ServerLine, error) {
	m.record("Update")
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, lineID, qty)
	}
	return model.ServerLine{ID: lineID, Quantity: qty}, nil
}

// Remove calls RemoveFunc or succeeds.
func (m *Mock) Remove(ctx context.Context, lineID int64) error {
	m.record("Remove")
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, lineID)
	}
	return nil
}

// Merge calls MergeFunc or returns an empty cart.
func (m *Mock) Merge(ctx context.Context, entries []model.MergeEntry) ([]model.ServerLine, error) {
	m.record("Merge")
	if m.MergeFunc != nil {
		return m.MergeFunc(ctx, entries)
	}
	return []model.ServerLine{}, nil
}

func (m *Mock) Reset() { m.record("Reset") }

// Verify Mock implements Cart interface at compile time.
var _ Cart = (*Mock)(nil)
