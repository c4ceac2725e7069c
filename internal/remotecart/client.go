// Package remotecart talks to the account cart resource and keeps a
// tag-invalidated cache of the last fetched list.
//
// The list query provides the tag Cart:LIST plus Cart:<id> for every line.
// Successful mutations invalidate the tags they touch; failed mutations leave
// the cache alone. The next List after an invalidation refetches.
package remotecart

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
)

// TagList covers the cart list as a whole.
const TagList = "Cart:LIST"

// LineTag names the cache tag for one server line.
func LineTag(lineID int64) string {
	return "Cart:" + strconv.FormatInt(lineID, 10)
}

// Doer is the storefront transport the client needs. *api.Client satisfies it.
type Doer interface {
	Data(ctx context.Context, method, path string, body, result interface{}) error
}

type addRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	Items []model.MergeEntry `json:"items"`
}

// Client is the remote cart client. Safe for concurrent use.
type Client struct {
	api    Doer
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	lines    []model.ServerLine  // last successful list
	provided map[string]struct{} // tags the cached list provides
	fresh    bool                // cached list is valid
	fetched  bool                // at least one list has succeeded
	loading  int                 // in-flight list fetches
	gen      uint64              // bumped on every invalidation and reset
	epoch    uint64              // bumped on reset; fetches from an older epoch are not cached
}

// New creates a Client over the storefront API.
func New(api Doer, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		logger: logger,
		lines:  []model.ServerLine{},
	}
}

// List returns the account cart, from cache when the cached list is still valid.
// Concurrent callers within one session share one request. The shared request
// is detached from any single caller's cancellation and bounded by the HTTP
// client timeout; a caller that gives up gets ctx.Err() while the rest wait on.
func (c *Client) List(ctx context.Context) ([]model.ServerLine, error) {
	c.mu.Lock()
	if c.fresh {
		lines := copyLines(c.lines)
		c.mu.Unlock()
		return lines, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("list:"+strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		return c.fetch(shared, epoch)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyLines(res.Val.([]model.ServerLine)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(ctx context.Context, epoch uint64) ([]model.ServerLine, error) {
	c.mu.Lock()
	c.loading++
	startGen := c.gen
	c.mu.Unlock()

	var lines []model.ServerLine
	err := c.api.Data(ctx, http.MethodGet, "/cart", nil, &lines)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading--

	if err != nil {
		c.logger.WarnContext(ctx, "listing account cart failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing cart: %w", err)
	}
	if lines == nil {
		lines = []model.ServerLine{}
	}
	if c.epoch != epoch {
		// The session changed hands mid-flight; these lines belong to the old one.
		return lines, nil
	}

	// A mutation that landed while we were fetching may not be reflected in
	// this response; keep it as last-known-good but leave the cache stale.
	if c.gen == startGen {
		c.fresh = true
	}
	c.fetched = true
	c.lines = lines
	c.provided = providedTags(lines)

	return lines, nil
}

// Lines returns the last successfully fetched list, even if it has since been
// invalidated. Empty before the first fetch.
func (c *Client) Lines() []model.ServerLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyLines(c.lines)
}

// Fetched reports whether any list has succeeded since the last Reset.
func (c *Client) Fetched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetched
}

// Loading reports whether a list fetch is in flight.
func (c *Client) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading > 0
}

// Add creates a line or, server-side, increments an existing one.
func (c *Client) Add(ctx context.Context, productID int64, qty int) (model.ServerLine, error) {
	var line model.ServerLine
	if err := c.api.Data(ctx, http.MethodPost, "/cart", addRequest{ProductID: productID, Quantity: qty}, &line); err != nil {
		return model.ServerLine{}, fmt.Errorf("adding product %d: %w", productID, err)
	}
	c.Invalidate(TagList)
	return line, nil
}

// Update sets the quantity of a server line.
func (c *Client) Update(ctx context.Context, lineID int64, qty int) (model.ServerLine, error) {
	var line model.ServerLine
	path := "/cart/" + strconv.FormatInt(lineID, 10)
	if err := c.api.Data(ctx, http.MethodPut, path, updateRequest{Quantity: qty}, &line); err != nil {
		return model.ServerLine{}, fmt.Errorf("updating line %d: %w", lineID, err)
	}
	c.Invalidate(LineTag(lineID), TagList)
	return line, nil
}

// Remove deletes a server line.
func (c *Client) Remove(ctx context.Context, lineID int64) error {
	path := "/cart/" + strconv.FormatInt(lineID, 10)
	if err := c.api.Data(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("removing line %d: %w", lineID, err)
	}
	c.Invalidate(LineTag(lineID), TagList)
	return nil
}

// Merge folds guest entries into the account cart. The server decides how
// quantities combine; the returned lines are the merged cart.
func (c *Client) Merge(ctx context.Context, entries []model.MergeEntry) ([]model.ServerLine, error) {
	var lines []model.ServerLine
	if err := c.api.Data(ctx, http.MethodPost, "/cart/merge", mergeRequest{Items: entries}, &lines); err != nil {
		return nil, fmt.Errorf("merging %d entries: %w", len(entries), err)
	}
	c.Invalidate(TagList)
	return lines, nil
}

// Invalidate marks the cached list stale if it provides any of tags.
func (c *Client) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for _, tag := range tags {
		if _, ok := c.provided[tag]; ok {
			c.fresh = false
			return
		}
	}
}

// Reset forgets the cached list entirely. Used when the session changes hands.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.epoch++
	c.lines = []model.ServerLine{}
	c.provided = nil
	c.fresh = false
	c.fetched = false
}

func providedTags(lines []model.ServerLine) map[string]struct{} {
	tags := make(map[string]struct{}, len(lines)+1)
	tags[TagList] = struct{}{}
	for _, l := range lines {
		tags[LineTag(l.ID)] = struct{}{}
	}
	return tags
}

func copyLines(lines []model.ServerLine) []model.ServerLine {
	out := make([]model.ServerLine, len(lines))
	copy(out, lines)
	return out
}
