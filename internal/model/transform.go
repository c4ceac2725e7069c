package model

// LocalView builds the guest cart view. Items are always non-nil so JSON
// consumers get [] rather than null.
func LocalView(lines []LocalLine) CartView {
	view := CartView{Items: make([]Line, 0, len(lines))}
	for _, l := range lines {
		sub := l.Subtotal()
		view.Items = append(view.Items, Line{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Title:     l.Product.Title,
			UnitPrice: l.Product.Price,
			ImageURL:  l.Product.ImageURL,
			Subtotal:  sub,
		})
		view.Count += l.Quantity
		view.Total = view.Total.Add(sub)
	}
	return view
}

// ServerView builds the account cart view from the last fetched list.
func ServerView(lines []ServerLine) CartView {
	view := CartView{Items: make([]Line, 0, len(lines)), IsAuthenticated: true}
	for _, l := range lines {
		sub := l.Subtotal()
		view.Items = append(view.Items, Line{
			ProductID: l.ProductID,
			LineID:    l.ID,
			Quantity:  l.Quantity,
			Title:     l.Product.Title,
			UnitPrice: l.Product.Price,
			ImageURL:  l.Product.ImageURL,
			Subtotal:  sub,
		})
		view.Count += l.Quantity
		view.Total = view.Total.Add(sub)
	}
	return view
}

// MergeEntries projects guest lines onto the merge request shape.
func MergeEntries(lines []LocalLine) []MergeEntry {
	entries := make([]MergeEntry, 0, len(lines))
	for _, l := range lines {
		entries = append(entries, MergeEntry{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return entries
}
