package order

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
)

// MemorySubmitter records submitted orders and answers with a preset outcome.
type MemorySubmitter struct {
	mu        sync.Mutex
	outcome   domain.OrderOutcome
	err       error
	submitted []domain.OrderRequest
}

// NewMemorySubmitter accepts every order with the given message.
func NewMemorySubmitter(message string) *MemorySubmitter {
	return &MemorySubmitter{
		outcome: domain.OrderOutcome{Status: domain.OrderStatusSuccess, Message: message},
	}
}

func (m *MemorySubmitter) Respond(outcome domain.OrderOutcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = outcome
	m.err = err
}

// Submitted returns copies of the requests seen so far.
func (m *MemorySubmitter) Submitted() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderRequest, len(m.submitted))
	copy(out, m.submitted)
	return out
}

func (m *MemorySubmitter) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]domain.OrderLineItem, len(req.LineItems))
	copy(lines, req.LineItems)
	req.LineItems = lines
	m.submitted = append(m.submitted, req)

	if m.err != nil {
		return domain.OrderOutcome{}, m.err
	}
	return m.outcome, nil
}
