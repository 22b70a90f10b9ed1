package domain

// StockCheckResult is produced per add-item call and never cached.
type StockCheckResult struct {
	BookID            string `json:"bookId"`
	InStock           bool   `json:"inStock"`
	AvailableQuantity int    `json:"availableQuantity"`
}
