package app

import (
	"context"

	"storefront/internal/auth"
	"storefront/internal/merge"
	"storefront/internal/model"
	"storefront/internal/reconcile"
)

// Service is the cart surface cartd and the CLI drive. *App implements it.
//
// Every method routes by auth state: guests work against the local cart,
// signed-in users against the account cart.
type Service interface {
	// View returns the active cart. For signed-in users a failed fetch still
	// returns the last known lines alongside the error.
	View(ctx context.Context) (model.CartView, error)

	// AddItem adds qty of a product. Guests need a catalog lookup to build
	// the line snapshot; signed-in users only send the id.
	AddItem(ctx context.Context, productID int64, qty int) error

	// UpdateItem sets a quantity; qty <= 0 removes the line.
	UpdateItem(ctx context.Context, productID int64, qty int) error

	RemoveItem(ctx context.Context, productID int64) error
	ClearCart(ctx context.Context) error

	Login(ctx context.Context, creds auth.LoginCredentials) (merge.Outcome, error)
	Register(ctx context.Context, creds auth.RegisterCredentials) (merge.Outcome, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (auth.User, error)

	// MergeStatus opens or reports the merge confirmation.
	MergeStatus(ctx context.Context) (*MergeStatus, error)
	ConfirmMerge(ctx context.Context) error
	DiscardMerge(ctx context.Context) error
}

// MergeStatus is the merge confirmation as shown to the user.
type MergeStatus struct {
	State     merge.State             `json:"state"`
	Preview   *reconcile.MergePreview `json:"preview,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
}

var _ Service = (*App)(nil)

func (a *App) View(ctx context.Context) (model.CartView, error) {
	return a.Cart.View(ctx)
}

func (a *App) AddItem(ctx context.Context, productID int64, qty int) error {
	product := model.Product{ID: productID}
	if !a.Session.IsAuthenticated() {
		var err error
		if product, err = a.Catalog.Get(ctx, productID); err != nil {
			return err
		}
	}
	return a.Cart.AddItem(ctx, product, qty)
}

func (a *App) UpdateItem(ctx context.Context, productID int64, qty int) error {
	if err := a.ensureFetched(ctx); err != nil {
		return err
	}
	return a.Cart.UpdateItemQuantity(ctx, productID, qty)
}

func (a *App) RemoveItem(ctx context.Context, productID int64) error {
	if err := a.ensureFetched(ctx); err != nil {
		return err
	}
	return a.Cart.RemoveItem(ctx, productID)
}

func (a *App) ClearCart(ctx context.Context) error {
	if err := a.ensureFetched(ctx); err != nil {
		return err
	}
	return a.Cart.ClearCart(ctx)
}

// ensureFetched loads the account cart once so product ids can be resolved
// to line ids. A process that just restored its session has no lines yet.
func (a *App) ensureFetched(ctx context.Context) error {
	if !a.Session.IsAuthenticated() || a.Remote.Fetched() {
		return nil
	}
	_, err := a.Remote.List(ctx)
	return err
}

func (a *App) CurrentUser(ctx context.Context) (auth.User, error) {
	return a.Session.CurrentUser(ctx)
}

func (a *App) MergeStatus(ctx context.Context) (*MergeStatus, error) {
	c, preview, err := a.BeginMerge(ctx)
	if err != nil {
		return nil, err
	}
	status := &MergeStatus{State: c.State(), Preview: preview}
	if err := c.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status, nil
}

func (a *App) ConfirmMerge(ctx context.Context) error {
	c, err := a.PendingMerge()
	if err != nil {
		return err
	}
	if err := c.Merge(ctx); err != nil {
		return err
	}
	a.Cart.Notify()
	return nil
}

func (a *App) DiscardMerge(ctx context.Context) error {
	c, err := a.PendingMerge()
	if err != nil {
		return err
	}
	if err := c.Discard(ctx); err != nil {
		return err
	}
	a.Cart.Notify()
	return nil
}
