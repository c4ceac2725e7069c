package remotecart

import (
	"context"

	"storefront/internal/model"
)

// Cart is the remote cart surface the facade and merge flow depend on.
type Cart interface {
	// List returns the account cart, serving a valid cached list without a request.
	List(ctx context.Context) ([]model.ServerLine, error)
	// Lines returns the last known list without blocking.
	Lines() []model.ServerLine
	// Loading reports an in-flight list fetch.
	Loading() bool

	Add(ctx context.Context, productID int64, qty int) (model.ServerLine, error)
	Update(ctx context.Context, lineID int64, qty int) (model.ServerLine, error)
	Remove(ctx context.Context, lineID int64) error
	Merge(ctx context.Context, entries []model.MergeEntry) ([]model.ServerLine, error)

	// Reset drops all cached state.
	Reset()
}

var _ Cart = (*Client)(nil)
