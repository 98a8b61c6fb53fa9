package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
)

// Methods a generator may use to produce a receipt document.
const (
	MethodPrint    = "print"
	MethodDownload = "download"
)

// Options controls how a receipt is produced.
type Options struct {
	IncludeImages bool
	Method        string
}

// Receipt is the artifact produced for one order.
type Receipt struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Method      string    `json:"method"`
	GeneratedAt time.Time `json:"generated_at"`
	Location    string    `json:"location,omitempty"`
}

// Generator produces a receipt for an order. The rendering mechanics (PDF,
// print pipeline) live behind this interface.
type Generator interface {
	Generate(ctx context.Context, o order.Order, opts Options) (Receipt, error)
}

// GenerationError reports a failed generation attempt with enough context
// to retry by hand.
type GenerationError struct {
	OrderID string
	Method  string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate receipt for order %s via %s: %v", e.OrderID, e.Method, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
