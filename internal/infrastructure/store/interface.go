package store

import (
	"context"

	"github.com/example/receiptflow/internal/domain/order"
)

// Archive persists discovered and enriched orders keyed by order id. It is
// the runner's cache: an archived enriched order is not fetched again.
type Archive interface {
	// Save upserts one order.
	Save(ctx context.Context, o order.Order) error
	// Get returns the archived order, or (nil, nil) when absent.
	Get(ctx context.Context, orderID string) (*order.Order, error)
	// List returns all archived orders, oldest first.
	List(ctx context.Context) ([]order.Order, error)
	// ListEnriched returns only fully enriched orders, oldest first.
	ListEnriched(ctx context.Context) ([]order.Order, error)
}
