// Package reconcile previews how a guest cart folds into an account cart.
// The server owns the actual merge; this only predicts it so the
// confirmation step can tell the user what will change.
package reconcile

import "storefront/internal/model"

// MergePreview describes the expected effect of merging the guest cart.
// Entries follow the guest cart's order.
type MergePreview struct {
	ToAdd       []ItemToAdd       `json:"to_add"`       // Guest products the account cart lacks
	ToIncrement []ItemToIncrement `json:"to_increment"` // Guest products already in the account cart
	Untouched   int               `json:"untouched"`    // Account lines with no guest counterpart

	// ServerKnown is false when no account list has been fetched yet; every
	// guest line is then reported under ToAdd.
	ServerKnown bool `json:"server_known"`
}

// ItemToAdd is a guest line that becomes a new account line.
type ItemToAdd struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

// ItemToIncrement is a guest line that raises an existing account line.
type ItemToIncrement struct {
	ProductID   int64  `json:"product_id"`
	LineID      int64  `json:"line_id"` // Account line that absorbs the guest quantity
	Title       string `json:"title"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
}

// IsEmpty returns true if the merge would change nothing.
func (p *MergePreview) IsEmpty() bool {
	return len(p.ToAdd) == 0 && len(p.ToIncrement) == 0
}

// Lines is the number of guest lines covered by the preview.
func (p *MergePreview) Lines() int {
	return len(p.ToAdd) + len(p.ToIncrement)
}

// PreviewMerge matches guest lines against account lines by product id and
// assumes the server merge is additive per product.
//
// Algorithm:
//  1. Index account lines by product id
//  2. For each guest line: present → increment; absent → add
//  3. Count account lines no guest line touched
func PreviewMerge(server []model.ServerLine, local []model.LocalLine, serverKnown bool) *MergePreview {
	preview := &MergePreview{ServerKnown: serverKnown}

	serverByProduct := make(map[int64]model.ServerLine, len(server))
	for _, line := range server {
		serverByProduct[line.ProductID] = line
	}

	touched := make(map[int64]bool, len(local))
	for _, guest := range local {
		if current, exists := serverByProduct[guest.ProductID]; exists {
			preview.ToIncrement = append(preview.ToIncrement, ItemToIncrement{
				ProductID:   guest.ProductID,
				LineID:      current.ID,
				Title:       current.Product.Title,
				OldQuantity: current.Quantity,
				NewQuantity: current.Quantity + guest.Quantity,
			})
			touched[guest.ProductID] = true
			continue
		}
		preview.ToAdd = append(preview.ToAdd, ItemToAdd{
			ProductID: guest.ProductID,
			Title:     guest.Product.Title,
			Quantity:  guest.Quantity,
		})
	}

	for productID := range serverByProduct {
		if !touched[productID] {
			preview.Untouched++
		}
	}

	return preview
}
