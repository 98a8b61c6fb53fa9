package mocks

import (
	"context"
	"sync"

	"github.com/example/receiptflow/internal/domain/order"
)

// MockArchive is an in-memory Archive implementation for testing.
type MockArchive struct {
	mu     sync.RWMutex
	orders map[string]order.Order
	seq    []string // insertion order

	// For tracking calls in tests
	SaveCalls []string
	SaveErr   error
	GetErr    error
	ListErr   error
}

// NewMockArchive creates a new MockArchive.
func NewMockArchive() *MockArchive {
	return &MockArchive{orders: make(map[string]order.Order)}
}

// Save upserts the order in memory.
func (m *MockArchive) Save(ctx context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls = append(m.SaveCalls, o.ID)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, exists := m.orders[o.ID]; !exists {
		m.seq = append(m.seq, o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

// Get returns the archived order, or (nil, nil) when absent.
func (m *MockArchive) Get(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// List returns all archived orders in insertion order.
func (m *MockArchive) List(ctx context.Context) ([]order.Order, error) {
	return m.list(false)
}

// ListEnriched returns only enriched orders in insertion order.
func (m *MockArchive) ListEnriched(ctx context.Context) ([]order.Order, error) {
	return m.list(true)
}

func (m *MockArchive) list(enrichedOnly bool) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []order.Order
	for _, id := range m.seq {
		o := m.orders[id]
		if enrichedOnly && !o.Enriched {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
