package app

import (
	"context"

	"storefront/internal/auth"
	"storefront/internal/merge"
	"storefront/internal/model"
)

// Mock implements Service for testing.
// Each method can be configured via function fields.
type Mock struct {
	ViewFunc         func(ctx context.Context) (model.CartView, error)
	AddItemFunc      func(ctx context.Context, productID int64, qty int) error
	UpdateItemFunc   func(ctx context.Context, productID int64, qty int) error
	RemoveItemFunc   func(ctx context.Context, productID int64) error
	ClearCartFunc    func(ctx context.Context) error
	LoginFunc        func(ctx context.Context, creds auth.LoginCredentials) (merge.Outcome, error)
	RegisterFunc     func(ctx context.Context, creds auth.RegisterCredentials) (merge.Outcome, error)
	LogoutFunc       func(ctx context.Context) error
	CurrentUserFunc  func(ctx context.Context) (auth.User, error)
	MergeStatusFunc  func(ctx context.Context) (*MergeStatus, error)
	ConfirmMergeFunc func(ctx context.Context) error
	DiscardMergeFunc func(ctx context.Context) error
}

// View calls the configured ViewFunc or returns an empty guest cart.
func (m *Mock) View(ctx context.Context) (model.CartView, error) {
	if m.ViewFunc != nil {
		return m.ViewFunc(ctx)
	}
	return model.LocalView(nil), nil
}

func (m *Mock) AddItem(ctx context.Context, productID int64, qty int) error {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, productID, qty)
	}
	return nil
}

func (m *Mock) UpdateItem(ctx context.Context, productID int64, qty int) error {
	if m.UpdateItemFunc != nil {
		return m.UpdateItemFunc(ctx, productID, qty)
	}
	return nil
}

func (m *Mock) RemoveItem(ctx context.Context, productID int64) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, productID)
	}
	return nil
}

func (m *Mock) ClearCart(ctx context.Context) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx)
	}
	return nil
}

// Login calls the configured LoginFunc or succeeds with nothing to merge.
func (m *Mock) Login(ctx context.Context, creds auth.LoginCredentials) (merge.Outcome, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, creds)
	}
	return merge.OutcomeNothingToMerge, nil
}

func (m *Mock) Register(ctx context.Context, creds auth.RegisterCredentials) (merge.Outcome, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, creds)
	}
	return merge.OutcomeNothingToMerge, nil
}

func (m *Mock) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

// CurrentUser calls the configured CurrentUserFunc or returns unauthorized.
func (m *Mock) CurrentUser(ctx context.Context) (auth.User, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return auth.User{}, model.NewUnauthorizedError("not signed in")
}

// MergeStatus calls the configured MergeStatusFunc or reports ineligible.
func (m *Mock) MergeStatus(ctx context.Context) (*MergeStatus, error) {
	if m.MergeStatusFunc != nil {
		return m.MergeStatusFunc(ctx)
	}
	return nil, merge.ErrNotEligible
}

func (m *Mock) ConfirmMerge(ctx context.Context) error {
	if m.ConfirmMergeFunc != nil {
		return m.ConfirmMergeFunc(ctx)
	}
	return ErrNoPendingMerge
}

func (m *Mock) DiscardMerge(ctx context.Context) error {
	if m.DiscardMergeFunc != nil {
		return m.DiscardMergeFunc(ctx)
	}
	return ErrNoPendingMerge
}

// Verify Mock implements Service interface at compile time.
var _ Service = (*Mock)(nil)
