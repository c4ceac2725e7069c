package localcart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"storefront/internal/localstore"
	"storefront/internal/model"
)

// recordingStore counts loads and saves on top of a real Store.
type recordingStore struct {
	*localstore.Store
	loads int
	saves int
}

func (r *recordingStore) Load(ctx context.Context) []model.LocalLine {
	r.loads++
	return r.Store.Load(ctx)
}

func (r *recordingStore) Save(ctx context.Context, lines []model.LocalLine) {
	r.saves++
	r.Store.Save(ctx, lines)
}

func newTestManager(t *testing.T) (*Manager, *recordingStore, *localstore.MemoryBackend) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := localstore.NewMemoryBackend()
	store := &recordingStore{Store: localstore.New(backend, "", logger)}
	m := New(store, logger)
	m.Initialize(context.Background())
	return m, store, backend
}

func snap(id int64, price string) model.ProductSnapshot {
	return model.ProductSnapshot{ID: id, Title: "p", Price: model.MustParseMoney(price)}
}

func TestInitialize_Idempotent(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)

	if err := m.Add(ctx, 1, 2, snap(1, "10")); err != nil {
		t.Fatal(err)
	}
	// Something else overwrites storage after we loaded.
	backend.Set(ctx, localstore.DefaultKey, "[]")

	m.Initialize(ctx)

	if store.loads != 1 {
		t.Errorf("loads = %d, want 1", store.loads)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2 (second Initialize must not reload)", m.Count())
	}
}

func TestInitialize_RehydratesPersistedCart(t *testing.T) {
	ctx := context.Background()
	m, _, backend := newTestManager(t)
	m.Add(ctx, 1, 3, snap(1, "5"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := New(localstore.New(backend, "", logger), logger)
	next.Initialize(ctx)

	items := next.Items()
	if len(items) != 1 || items[0].ProductID != 1 || items[0].Quantity != 3 {
		t.Errorf("rehydrated items = %+v", items)
	}
}

func TestAdd_Accumulates(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	m.Add(ctx, 7, 2, snap(7, "10"))
	m.Add(ctx, 7, 3, snap(7, "99")) // second snapshot is ignored

	items := m.Items()
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", items[0].Quantity)
	}
	if items[0].Product.Price.String() != "10.00" {
		t.Errorf("snapshot price = %s, want first snapshot 10.00", items[0].Product.Price)
	}
}

func TestAdd_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)

	tests := []struct {
		name string
		id   int64
		qty  int
	}{
		{"zero quantity", 1, 0},
		{"negative quantity", 1, -2},
		{"zero product", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Add(ctx, tt.id, tt.qty, snap(tt.id, "1"))
			if !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("Add() error = %v, want validation error", err)
			}
		})
	}
	if store.saves != 0 {
		t.Errorf("saves = %d, want 0 after rejected adds", store.saves)
	}
	if m.Pulse() != 0 {
		t.Errorf("Pulse() = %d, want 0 after rejected adds", m.Pulse())
	}
}

func TestAdd_PulsesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	m.Add(ctx, 1, 1, snap(1, "1"))
	m.Add(ctx, 1, 1, snap(1, "1"))
	m.Add(ctx, 2, 1, snap(2, "1"))

	if m.Pulse() != 3 {
		t.Errorf("Pulse() = %d, want 3", m.Pulse())
	}
}

func TestUpdateQuantity(t *testing.T) {
	tests := []struct {
		name      string
		productID int64
		qty       int
		wantLines int
		wantQty   int
		wantSave  bool
	}{
		{"set quantity", 1, 4, 1, 4, true},
		{"zero removes", 1, 0, 0, 0, true},
		{"negative removes", 1, -1, 0, 0, true},
		{"absent product is a no-op", 99, 4, 1, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, store, _ := newTestManager(t)
			m.Add(ctx, 1, 2, snap(1, "10"))
			savesBefore := store.saves

			m.UpdateQuantity(ctx, tt.productID, tt.qty)

			items := m.Items()
			if len(items) != tt.wantLines {
				t.Fatalf("len(items) = %d, want %d", len(items), tt.wantLines)
			}
			if tt.wantLines > 0 && items[0].Quantity != tt.wantQty {
				t.Errorf("Quantity = %d, want %d", items[0].Quantity, tt.wantQty)
			}
			if saved := store.saves > savesBefore; saved != tt.wantSave {
				t.Errorf("saved = %v, want %v", saved, tt.wantSave)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	m.Add(ctx, 1, 1, snap(1, "1"))
	m.Add(ctx, 2, 1, snap(2, "1"))

	m.Remove(ctx, 1)

	items := m.Items()
	if len(items) != 1 || items[0].ProductID != 2 {
		t.Errorf("items after Remove = %+v", items)
	}

	saves := store.saves
	m.Remove(ctx, 42)
	if store.saves != saves {
		t.Error("removing an absent product should not write")
	}
}

func TestClear_PersistsEmptyArray(t *testing.T) {
	ctx := context.Background()
	m, _, backend := newTestManager(t)
	m.Add(ctx, 1, 1, snap(1, "1"))

	m.Clear(ctx)

	if !m.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
	raw, _ := backend.Get(ctx, localstore.DefaultKey)
	if raw != "[]" {
		t.Errorf("stored = %q, want []", raw)
	}
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	m.Add(ctx, 1, 2, snap(1, "100"))
	m.Add(ctx, 2, 1, snap(2, "250"))

	if m.Count() != 3 {
		t.Errorf("Count() = %d, want 3", m.Count())
	}
	if !m.Total().Equal(model.MustParseMoney("450")) {
		t.Errorf("Total() = %s, want 450.00", m.Total())
	}
}

func TestReplace_Normalizes(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	m.Replace(ctx, []model.LocalLine{
		{ProductID: 1, Quantity: 1, Product: snap(1, "1")},
		{ProductID: 1, Quantity: 2, Product: snap(1, "1")},
		{ProductID: 2, Quantity: 0, Product: snap(2, "1")},
	})

	items := m.Items()
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Errorf("items after Replace = %+v", items)
	}
}

func TestItems_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	m.Add(ctx, 1, 1, snap(1, "1"))

	items := m.Items()
	items[0].Quantity = 100

	if m.Items()[0].Quantity != 1 {
		t.Error("mutating Items() result changed manager state")
	}
}
