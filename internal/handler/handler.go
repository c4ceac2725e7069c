// Package handler provides the HTTP surface of cartd: a REST API over the
// cart service plus an MCP endpoint exposing the same operations as tools.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"storefront/internal/app"
	"storefront/internal/cart"
	"storefront/internal/merge"
	"storefront/internal/model"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc    app.Service
	logger *slog.Logger
}

// New creates a new Handler over the given service.
func New(svc app.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PUT /cart/items/{product_id}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/items/{product_id}", h.handleRemoveItem)

	// Session
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/user", h.handleCurrentUser)

	// Guest cart merge confirmation
	mux.HandleFunc("GET /merge", h.handleMergeStatus)
	mux.HandleFunc("POST /merge/confirm", h.handleConfirmMerge)
	mux.HandleFunc("POST /merge/discard", h.handleDiscardMerge)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)

	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(apiErr.RetryAfter.Seconds()))))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Fields:  apiErr.Fields,
		},
	})
}

// toAPIError finds the APIError in err's chain or classifies err.
// Unclassified errors are logged and reported as internal without detail.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, cart.ErrLineBusy),
		errors.Is(err, merge.ErrInvalidTransition),
		errors.Is(err, merge.ErrNotEligible):
		return model.NewConflictError(err)
	case errors.Is(err, app.ErrNoPendingMerge):
		return &model.APIError{
			Code:       model.CodeNotFound,
			Message:    err.Error(),
			StatusCode: http.StatusNotFound,
			Err:        err,
		}
	}

	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       model.CodeInternal,
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// productIDParam parses the {product_id} path segment.
func productIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("product_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("product_id", "must be a positive integer")
	}
	return id, nil
}
