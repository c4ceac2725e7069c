// MCP transport for cartd using the official MCP Go SDK.
// Exposes cart and merge operations as MCP tools.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
	"storefront/internal/reconcile"
)

// === MCP Tool Input/Output Types ===
// Money goes out as decimal strings so the output schema stays a plain string.

// NoInput is the input schema for tools that take no arguments.
type NoInput struct{}

// AddToCartInput is the input schema for add_to_cart tool.
type AddToCartInput struct {
	ProductID int64 `json:"product_id" jsonschema:"catalog product ID,required"`
	Quantity  int   `json:"quantity,omitempty" jsonschema:"quantity to add, defaults to 1"`
}

// UpdateCartItemInput is the input schema for update_cart_item tool.
type UpdateCartItemInput struct {
	ProductID int64 `json:"product_id" jsonschema:"catalog product ID,required"`
	Quantity  int   `json:"quantity" jsonschema:"new quantity, 0 removes the line,required"`
}

// RemoveFromCartInput is the input schema for remove_from_cart tool.
type RemoveFromCartInput struct {
	ProductID int64 `json:"product_id" jsonschema:"catalog product ID,required"`
}

// CartOutput is the cart as returned by MCP tools.
type CartOutput struct {
	Items           []LineOutput `json:"items"`
	Count           int          `json:"count"`
	Total           string       `json:"total"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsLoading       bool         `json:"is_loading"`
}

// LineOutput is one cart line as returned by MCP tools.
type LineOutput struct {
	ProductID int64  `json:"product_id"`
	LineID    int64  `json:"line_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title"`
	UnitPrice string `json:"unit_price"`
	ImageURL  string `json:"image_url,omitempty"`
	Subtotal  string `json:"subtotal"`
}

// MergeStatusOutput is the merge confirmation as returned by MCP tools.
type MergeStatusOutput struct {
	State     string                  `json:"state"`
	Preview   *reconcile.MergePreview `json:"preview,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
}

func toCartOutput(view model.CartView) *CartOutput {
	out := &CartOutput{
		Items:           make([]LineOutput, 0, len(view.Items)),
		Count:           view.Count,
		Total:           view.Total.String(),
		IsAuthenticated: view.IsAuthenticated,
		IsLoading:       view.IsLoading,
	}
	for _, l := range view.Items {
		out.Items = append(out.Items, LineOutput{
			ProductID: l.ProductID,
			LineID:    l.LineID,
			Quantity:  l.Quantity,
			Title:     l.Title,
			UnitPrice: l.UnitPrice.String(),
			ImageURL:  l.ImageURL,
			Subtotal:  l.Subtotal.String(),
		})
	}
	return out
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-cart",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart. Guests shop with a local cart; after sign-in the account cart " +
				"is authoritative. When a guest cart is left over after login, check merge_status and " +
				"ask the user before calling confirm_merge or discard_merge.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the active cart: the guest cart when signed out, the account cart when signed in.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the active cart. Adding a product already in the cart raises its quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a product in the cart. A quantity of 0 removes it.",
	}, h.mcpUpdateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from the active cart.",
	}, h.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "merge_status",
		Description: "Open or inspect the guest cart merge confirmation, with a preview of what merging changes.",
	}, h.mcpMergeStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "confirm_merge",
		Description: "Merge the guest cart into the account cart. Failures can be retried.",
	}, h.mcpConfirmMerge)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "discard_merge",
		Description: "Discard the guest cart and keep the account cart unchanged.",
	}, h.mcpDiscardMerge)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NoInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	return h.mcpCart(ctx)
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.ProductID <= 0 {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}

	if err := h.svc.AddItem(ctx, input.ProductID, qty); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpUpdateCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateCartItemInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.ProductID <= 0 {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	if err := h.svc.UpdateItem(ctx, input.ProductID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if input.ProductID <= 0 {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	if err := h.svc.RemoveItem(ctx, input.ProductID); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NoInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if err := h.svc.ClearCart(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpMergeStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NoInput,
) (*mcp.CallToolResult, *MergeStatusOutput, error) {
	status, err := h.svc.MergeStatus(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &MergeStatusOutput{
		State:     string(status.State),
		Preview:   status.Preview,
		LastError: status.LastError,
	}, nil
}

func (h *Handler) mcpConfirmMerge(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NoInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if err := h.svc.ConfirmMerge(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpDiscardMerge(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input NoInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	if err := h.svc.DiscardMerge(ctx); err != nil {
		return nil, nil, h.mcpError(err)
	}
	return h.mcpMutatedCart(ctx)
}

func (h *Handler) mcpCart(ctx context.Context) (*mcp.CallToolResult, *CartOutput, error) {
	view, err := h.svc.View(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, toCartOutput(view), nil
}

// mcpMutatedCart reports the cart after a successful mutation. A failed
// refresh falls back to the last known view.
func (h *Handler) mcpMutatedCart(ctx context.Context) (*mcp.CallToolResult, *CartOutput, error) {
	view, err := h.svc.View(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "refreshing cart after mutation failed", slog.String("error", err.Error()))
	}
	return nil, toCartOutput(view), nil
}

// mcpError converts service errors to MCP-friendly errors.
// Internal details are logged, not returned.
func (h *Handler) mcpError(err error) error {
	apiErr := h.toAPIError(err)
	if apiErr.Code == model.CodeInternal {
		return fmt.Errorf("internal error")
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
