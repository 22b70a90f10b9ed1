package stock

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
)

// MemoryVerifier answers stock checks from an in-process table.
type MemoryVerifier struct {
	mu     sync.RWMutex
	stocks map[string]int // bookID -> available quantity
	err    error
	calls  int
}

func NewMemoryVerifier() *MemoryVerifier {
	return &MemoryVerifier{
		stocks: make(map[string]int),
	}
}

// SetStock sets the available quantity for a book
func (m *MemoryVerifier) SetStock(bookID string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[bookID] = quantity
}

// FailWith makes every following Check return err; nil restores normal answers.
func (m *MemoryVerifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryVerifier) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Check reports unknown books as out of stock with zero available.
func (m *MemoryVerifier) Check(_ context.Context, bookID string, quantity int) (domain.StockCheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return domain.StockCheckResult{}, m.err
	}

	available, exists := m.stocks[bookID]
	return domain.StockCheckResult{
		BookID:            bookID,
		InStock:           exists && available >= quantity,
		AvailableQuantity: available,
	}, nil
}
