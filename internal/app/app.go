// Package app assembles the cart subsystem into one explicitly constructed
// container. There is exactly one App per process; nothing here is global.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/localcart"
	"storefront/internal/localstore"
	"storefront/internal/merge"
	"storefront/internal/reconcile"
	"storefront/internal/remotecart"
	"storefront/internal/transport"
)

// ErrNoPendingMerge is returned when no merge confirmation is open.
var ErrNoPendingMerge = errors.New("no merge confirmation in progress")

// App owns every cart component for the life of the process.
type App struct {
	Logger  *slog.Logger
	Session *auth.Session
	Cart    *cart.Facade
	Catalog *catalog.Catalog
	Local   *localcart.Manager
	Remote  *remotecart.Client
	Merger  *merge.Orchestrator

	backend localstore.Backend
	unsub   func()

	mu      sync.Mutex
	pending *merge.Confirmation
}

// New opens storage and builds the component graph:
// backend → store → local manager → api client → remote → session → facade → orchestrator.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, err := localstore.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	apiClient, err := api.New(api.Config{
		BaseURL:     cfg.API.BaseURL,
		Version:     cfg.API.Version,
		ClientToken: cfg.API.ClientToken,
		HTTPClient:  transport.NewClient(cfg.TransportOptions(logger)),
		Logger:      logger,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	return Assemble(ctx, backend, cfg.Storage.Key, apiClient, logger), nil
}

// Assemble wires the graph over an already-open backend and API client.
// The App takes ownership of backend.
func Assemble(ctx context.Context, backend localstore.Backend, key string, apiClient *api.Client, logger *slog.Logger) *App {
	store := localstore.New(backend, key, logger)
	local := localcart.New(store, logger)
	local.Initialize(ctx)

	remote := remotecart.New(apiClient, logger)
	session := auth.NewSession(apiClient, localstore.NewTokenSlot(backend, key, logger), logger)

	a := &App{
		Logger:  logger,
		Session: session,
		Cart:    cart.New(session, local, remote, logger),
		Catalog: catalog.New(apiClient),
		Local:   local,
		Remote:  remote,
		Merger:  merge.New(session, local, remote, logger),
		backend: backend,
	}

	apiClient.SetTokenSource(session.Token)
	apiClient.OnUnauthorized(func() {
		session.Drop(context.Background())
	})
	a.unsub = session.Subscribe(a.onAuthChange)

	session.Restore(ctx)
	return a
}

// Close releases storage.
func (a *App) Close() error {
	a.unsub()
	return a.backend.Close()
}

// Login signs in and runs the post-auth merge step. When the outcome is
// OutcomeConfirmationRequired a confirmation is opened; see PendingMerge.
func (a *App) Login(ctx context.Context, creds auth.LoginCredentials) (merge.Outcome, error) {
	if err := a.Session.Login(ctx, creds); err != nil {
		return merge.OutcomeNothingToMerge, err
	}
	return a.afterAuth(ctx, merge.FlowLogin), nil
}

// Register creates an account, signs in and merges the guest cart without
// asking. A failed merge is reported in the outcome, not as an error.
func (a *App) Register(ctx context.Context, creds auth.RegisterCredentials) (merge.Outcome, error) {
	if err := a.Session.Register(ctx, creds); err != nil {
		return merge.OutcomeNothingToMerge, err
	}
	return a.afterAuth(ctx, merge.FlowRegister), nil
}

// Logout ends the session. The guest cart is untouched.
func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// BeginMerge opens the merge confirmation, or returns the one already open,
// together with a preview of what merging would change.
func (a *App) BeginMerge(ctx context.Context) (*merge.Confirmation, *reconcile.MergePreview, error) {
	a.mu.Lock()
	c := a.pending
	a.mu.Unlock()

	if c == nil || c.State() == merge.StateDone {
		var err error
		c, err = a.Merger.NewConfirmation()
		if err != nil {
			return nil, nil, err
		}
		a.mu.Lock()
		a.pending = c
		a.mu.Unlock()
	}

	return c, a.preview(ctx), nil
}

// PendingMerge returns the open confirmation.
func (a *App) PendingMerge() (*merge.Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return nil, ErrNoPendingMerge
	}
	return a.pending, nil
}

func (a *App) afterAuth(ctx context.Context, flow merge.Flow) merge.Outcome {
	outcome := a.Merger.AfterAuth(ctx, flow)
	a.Logger.InfoContext(ctx, "post-auth merge step",
		slog.String("flow", flow.String()),
		slog.String("outcome", outcome.String()),
	)
	if outcome == merge.OutcomeConfirmationRequired {
		if _, _, err := a.BeginMerge(ctx); err != nil {
			a.Logger.WarnContext(ctx, "opening merge confirmation failed", slog.String("error", err.Error()))
		}
	}
	if outcome == merge.OutcomeMerged {
		a.Cart.Notify()
	}
	return outcome
}

// preview compares the guest cart with the account cart. A failed list still
// yields a preview, marked as not knowing the account side.
func (a *App) preview(ctx context.Context) *reconcile.MergePreview {
	server, err := a.Remote.List(ctx)
	if err != nil {
		a.Logger.DebugContext(ctx, "merge preview without account cart", slog.String("error", err.Error()))
		return reconcile.PreviewMerge(nil, a.Local.Items(), false)
	}
	return reconcile.PreviewMerge(server, a.Local.Items(), true)
}

// onAuthChange drops account state that belonged to the previous session,
// including a confirmation opened for another account.
func (a *App) onAuthChange(bool) {
	a.Remote.Reset()
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
	a.Cart.Notify()
}
