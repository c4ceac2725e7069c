// Package cart is the single entry point for cart operations. It routes each
// call to the guest cart or the account cart depending on auth state.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/model"
	"storefront/internal/remotecart"
)

// ErrLineBusy is returned when a product already has a mutation in flight.
var ErrLineBusy = errors.New("cart: line has a request in flight")

// AuthState reports whether the user is signed in. *auth.Session satisfies it.
type AuthState interface {
	IsAuthenticated() bool
}

// LocalCart is the guest cart. *localcart.Manager satisfies it.
type LocalCart interface {
	Add(ctx context.Context, productID int64, qty int, snapshot model.ProductSnapshot) error
	UpdateQuantity(ctx context.Context, productID int64, qty int)
	Remove(ctx context.Context, productID int64)
	Clear(ctx context.Context)
	Items() []model.LocalLine
	Pulse() uint64
}

// Facade holds no cart state of its own; the mode is read from AuthState on
// every call.
type Facade struct {
	auth   AuthState
	local  LocalCart
	remote remotecart.Cart
	logger *slog.Logger

	mu        sync.Mutex
	inflight  map[int64]struct{}
	pulse     uint64
	listeners map[int]func()
	nextID    int
}

// New creates a Facade.
func New(auth AuthState, local LocalCart, remote remotecart.Cart, logger *slog.Logger) *Facade {
	return &Facade{
		auth:      auth,
		local:     local,
		remote:    remote,
		logger:    logger,
		inflight:  make(map[int64]struct{}),
		listeners: make(map[int]func()),
	}
}

// AddItem adds qty of product to the active cart.
func (f *Facade) AddItem(ctx context.Context, product model.Product, qty int) error {
	if product.ID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	if qty < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	release, err := f.acquire(product.ID)
	if err != nil {
		return err
	}
	defer release()

	if !f.auth.IsAuthenticated() {
		if err := f.local.Add(ctx, product.ID, qty, product.Snapshot()); err != nil {
			return err
		}
		f.Notify()
		return nil
	}

	if _, err := f.remote.Add(ctx, product.ID, qty); err != nil {
		return fmt.Errorf("adding product %d: %w", product.ID, err)
	}
	f.mu.Lock()
	f.pulse++
	f.mu.Unlock()
	f.refetch(ctx)
	return nil
}

// UpdateItemQuantity sets the quantity of productID. qty <= 0 removes it.
func (f *Facade) UpdateItemQuantity(ctx context.Context, productID int64, qty int) error {
	release, err := f.acquire(productID)
	if err != nil {
		return err
	}
	defer release()

	if !f.auth.IsAuthenticated() {
		f.local.UpdateQuantity(ctx, productID, qty)
		f.Notify()
		return nil
	}

	line, ok := f.resolve(productID)
	if !ok {
		f.logger.DebugContext(ctx, "update skipped, no server line for product", slog.Int64("product_id", productID))
		return nil
	}
	if qty <= 0 {
		if err := f.remote.Remove(ctx, line.ID); err != nil {
			return fmt.Errorf("removing product %d: %w", productID, err)
		}
	} else if _, err := f.remote.Update(ctx, line.ID, qty); err != nil {
		return fmt.Errorf("updating product %d: %w", productID, err)
	}
	f.refetch(ctx)
	return nil
}

// RemoveItem deletes productID from the active cart.
func (f *Facade) RemoveItem(ctx context.Context, productID int64) error {
	release, err := f.acquire(productID)
	if err != nil {
		return err
	}
	defer release()

	if !f.auth.IsAuthenticated() {
		f.local.Remove(ctx, productID)
		f.Notify()
		return nil
	}

	line, ok := f.resolve(productID)
	if !ok {
		f.logger.DebugContext(ctx, "remove skipped, no server line for product", slog.Int64("product_id", productID))
		return nil
	}
	if err := f.remote.Remove(ctx, line.ID); err != nil {
		return fmt.Errorf("removing product %d: %w", productID, err)
	}
	f.refetch(ctx)
	return nil
}

// ClearCart empties the active cart. The account cart has no bulk endpoint,
// so lines are deleted one at a time; the first failure stops the loop and
// whatever was already deleted stays deleted.
func (f *Facade) ClearCart(ctx context.Context) error {
	if !f.auth.IsAuthenticated() {
		f.local.Clear(ctx)
		f.Notify()
		return nil
	}

	lines := f.remote.Lines()
	removed := 0
	var firstErr error
	for _, l := range lines {
		if err := f.remote.Remove(ctx, l.ID); err != nil {
			firstErr = fmt.Errorf("clearing cart: removed %d of %d lines: %w", removed, len(lines), err)
			break
		}
		removed++
	}
	if removed > 0 {
		f.refetch(ctx)
	}
	return firstErr
}

// View returns the active cart, fetching the account cart if it is stale.
// When the fetch fails the last known view is returned with the error.
func (f *Facade) View(ctx context.Context) (model.CartView, error) {
	if !f.auth.IsAuthenticated() {
		return model.LocalView(f.local.Items()), nil
	}
	lines, err := f.remote.List(ctx)
	if err != nil {
		view := model.ServerView(f.remote.Lines())
		view.IsLoading = f.remote.Loading()
		return view, fmt.Errorf("loading cart: %w", err)
	}
	view := model.ServerView(lines)
	view.IsLoading = f.remote.Loading()
	return view, nil
}

// Snapshot returns the active cart from memory without any network call.
func (f *Facade) Snapshot() model.CartView {
	if !f.auth.IsAuthenticated() {
		return model.LocalView(f.local.Items())
	}
	view := model.ServerView(f.remote.Lines())
	view.IsLoading = f.remote.Loading()
	return view
}

// Pulse counts successful adds across both modes; UIs animate on change.
func (f *Facade) Pulse() uint64 {
	f.mu.Lock()
	remote := f.pulse
	f.mu.Unlock()
	return remote + f.local.Pulse()
}

// Subscribe registers fn to run after every cart change and returns its cancel func.
func (f *Facade) Subscribe(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Notify runs every subscriber. Used internally after mutations and by the
// app container on auth changes.
func (f *Facade) Notify() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// refetch reloads the account cart after a successful mutation. A failed
// reload is logged; the mutation itself already succeeded.
func (f *Facade) refetch(ctx context.Context) {
	if _, err := f.remote.List(ctx); err != nil {
		f.logger.WarnContext(ctx, "cart refetch failed", slog.String("error", err.Error()))
	}
	f.Notify()
}

func (f *Facade) resolve(productID int64) (model.ServerLine, bool) {
	for _, l := range f.remote.Lines() {
		if l.ProductID == productID {
			return l, true
		}
	}
	return model.ServerLine{}, false
}

func (f *Facade) acquire(productID int64) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inflight[productID]; busy {
		return nil, ErrLineBusy
	}
	f.inflight[productID] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.inflight, productID)
		f.mu.Unlock()
	}, nil
}
