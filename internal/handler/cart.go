package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/merge"
	"storefront/internal/model"
)

type addItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity,omitempty"` // defaults to 1
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// authResponse reports what happened to the guest cart after sign-in.
type authResponse struct {
	Merge string `json:"merge"`
}

// handleGetCart returns the active cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, http.StatusOK)
}

// handleAddItem adds a product to the active cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	h.logger.InfoContext(ctx, "adding cart item",
		slog.Int64("product_id", req.ProductID),
		slog.Int("quantity", qty),
	)

	if err := h.svc.AddItem(ctx, req.ProductID, qty); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeMutatedCart(w, r, http.StatusCreated)
}

// handleUpdateItem sets a line quantity. Zero or less removes the line.
// PUT /cart/items/{product_id}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	h.logger.InfoContext(ctx, "updating cart item",
		slog.Int64("product_id", productID),
		slog.Int("quantity", *req.Quantity),
	)

	if err := h.svc.UpdateItem(ctx, productID, *req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeMutatedCart(w, r, http.StatusOK)
}

// handleRemoveItem deletes a line.
// DELETE /cart/items/{product_id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.svc.RemoveItem(r.Context(), productID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeMutatedCart(w, r, http.StatusOK)
}

// handleClearCart empties the active cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeMutatedCart(w, r, http.StatusOK)
}

// writeCart responds with the current cart view.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int) {
	view, err := h.svc.View(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, status, view)
}

// writeMutatedCart responds after a mutation that already succeeded. A failed
// refresh does not undo the mutation: the last known view goes out with status.
func (h *Handler) writeMutatedCart(w http.ResponseWriter, r *http.Request, status int) {
	view, err := h.svc.View(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "refreshing cart after mutation failed",
			slog.String("error", err.Error()),
		)
	}
	h.writeJSON(w, status, view)
}

// handleLogin signs in and reports the merge outcome.
// POST /auth/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds auth.LoginCredentials
	if err := decodeJSON(r, &creds); err != nil {
		h.writeError(w, err)
		return
	}

	outcome, err := h.svc.Login(ctx, creds)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAuth(w, r, outcome)
}

// handleRegister creates an account and merges the guest cart.
// POST /auth/register
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds auth.RegisterCredentials
	if err := decodeJSON(r, &creds); err != nil {
		h.writeError(w, err)
		return
	}

	outcome, err := h.svc.Register(ctx, creds)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAuth(w, r, outcome)
}

func (h *Handler) writeAuth(w http.ResponseWriter, r *http.Request, outcome merge.Outcome) {
	h.logger.InfoContext(r.Context(), "signed in", slog.String("merge", outcome.String()))
	h.writeJSON(w, http.StatusOK, authResponse{Merge: outcome.String()})
}

// handleLogout ends the session. The guest cart is kept.
// POST /auth/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCurrentUser returns the signed-in user.
// GET /auth/user
func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// handleMergeStatus opens or reports the merge confirmation with a preview.
// GET /merge
func (h *Handler) handleMergeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.MergeStatus(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// handleConfirmMerge merges the guest cart into the account cart.
// POST /merge/confirm
func (h *Handler) handleConfirmMerge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ConfirmMerge(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeMutatedCart(w, r, http.StatusOK)
}

// handleDiscardMerge drops the guest cart and leaves the account cart as is.
// POST /merge/discard
func (h *Handler) handleDiscardMerge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DiscardMerge(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeMutatedCart(w, r, http.StatusOK)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
