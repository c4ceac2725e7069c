// Package catalog looks up products so guest lines can carry a snapshot.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"storefront/internal/model"
)

// Doer is the storefront transport. *api.Client satisfies it.
type Doer interface {
	Data(ctx context.Context, method, path string, body, result interface{}) error
}

// Catalog fetches products by id. Results are memoized for the life of the
// process; prices may drift, which is the same trade-off guest snapshots make.
type Catalog struct {
	api Doer

	mu    sync.RWMutex
	cache map[int64]model.Product
}

// New creates a Catalog.
func New(api Doer) *Catalog {
	return &Catalog{api: api, cache: make(map[int64]model.Product)}
}

// Get returns product id.
func (c *Catalog) Get(ctx context.Context, id int64) (model.Product, error) {
	if id <= 0 {
		return model.Product{}, model.NewValidationError("product_id", "must be positive")
	}

	c.mu.RLock()
	p, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	if err := c.api.Data(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, &p); err != nil {
		return model.Product{}, fmt.Errorf("fetching product %d: %w", id, err)
	}
	if p.ID == 0 {
		p.ID = id
	}

	c.mu.Lock()
	c.cache[id] = p
	c.mu.Unlock()
	return p, nil
}
