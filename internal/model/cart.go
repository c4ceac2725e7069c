// Package model defines the cart data shared by the local and server carts,
// plus the tagged error and money types every component returns.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Product is a catalog product as the storefront API returns it.
type Product struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Price      Money  `json:"price"`
	ImageURL   string `json:"imageUrl"`
	CategoryID int64  `json:"categoryId,omitempty"`
}

// UnmarshalJSON accepts ids sent either as numbers or as numeric strings.
func (p *Product) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		Title      string          `json:"title"`
		Price      Money           `json:"price"`
		ImageURL   string          `json:"imageUrl"`
		CategoryID json.RawMessage `json:"categoryId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	id, err := parseFlexibleID(raw.ID)
	if err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	categoryID, err := parseFlexibleID(raw.CategoryID)
	if err != nil {
		return fmt.Errorf("product categoryId: %w", err)
	}

	*p = Product{
		ID:         id,
		Title:      raw.Title,
		Price:      raw.Price,
		ImageURL:   raw.ImageURL,
		CategoryID: categoryID,
	}
	return nil
}

// Snapshot copies the fields a guest cart keeps for display.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		ImageURL: p.ImageURL,
	}
}

// ProductSnapshot is the product data captured when a guest adds a line.
// It is never refreshed, so price drift against the catalog is expected.
type ProductSnapshot struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Price    Money  `json:"price"`
	ImageURL string `json:"imageUrl"`
}

// LocalLine is one line of the guest cart, persisted as-is.
type LocalLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   ProductSnapshot `json:"product"`
}

// Subtotal is quantity × snapshot price.
func (l LocalLine) Subtotal() Money {
	return l.Product.Price.Times(l.Quantity)
}

// ServerLine is one line of the account cart. Mutations address it by ID.
type ServerLine struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Product   Product   `json:"product"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subtotal is quantity × current catalog price.
func (l ServerLine) Subtotal() Money {
	return l.Product.Price.Times(l.Quantity)
}

// MergeEntry is one guest line sent to the merge endpoint.
type MergeEntry struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Line is the normalized line shape shown to callers regardless of which cart backs it.
type Line struct {
	ProductID int64  `json:"product_id"`
	LineID    int64  `json:"line_id,omitempty"` // zero for guest lines
	Quantity  int    `json:"quantity"`
	Title     string `json:"title"`
	UnitPrice Money  `json:"unit_price"`
	ImageURL  string `json:"image_url,omitempty"`
	Subtotal  Money  `json:"subtotal"`
}

// CartView is the unified read model of whichever cart is authoritative.
type CartView struct {
	Items           []Line `json:"items"`
	Count           int    `json:"count"`
	Total           Money  `json:"total"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsLoading       bool   `json:"is_loading"`
}

// parseFlexibleID decodes a JSON number or numeric string. Missing values are zero.
func parseFlexibleID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}
