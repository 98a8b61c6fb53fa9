package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
	"github.com/google/uuid"
)

// FileGenerator writes receipts as JSON documents to a directory. It is the
// default Generator used by the runner binary.
type FileGenerator struct {
	dir     string
	nowFunc func() time.Time
}

// NewFileGenerator creates a FileGenerator writing into dir.
func NewFileGenerator(dir string) *FileGenerator {
	return &FileGenerator{dir: dir, nowFunc: time.Now}
}

type receiptDocument struct {
	Receipt Receipt     `json:"receipt"`
	Order   order.Order `json:"order"`
}

// Generate writes one receipt document for the order. Image references are
// stripped from the written copy unless opts.IncludeImages is set.
func (g *FileGenerator) Generate(ctx context.Context, o order.Order, opts Options) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, &GenerationError{OrderID: o.ID, Method: opts.Method, Err: err}
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return Receipt{}, &GenerationError{OrderID: o.ID, Method: opts.Method, Err: err}
	}

	if !opts.IncludeImages {
		items := make([]order.OrderItem, len(o.Items))
		for i, item := range o.Items {
			item.ImageRef = ""
			items[i] = item
		}
		o.Items = items
	}

	rec := Receipt{
		ID:          uuid.New().String(),
		OrderID:     o.ID,
		Method:      opts.Method,
		GeneratedAt: g.nowFunc(),
	}
	rec.Location = filepath.Join(g.dir, fmt.Sprintf("receipt_%s.json", sanitizeID(o.ID)))

	data, err := json.MarshalIndent(receiptDocument{Receipt: rec, Order: o}, "", "  ")
	if err != nil {
		return Receipt{}, &GenerationError{OrderID: o.ID, Method: opts.Method, Err: err}
	}
	if err := os.WriteFile(rec.Location, data, 0o644); err != nil {
		return Receipt{}, &GenerationError{OrderID: o.ID, Method: opts.Method, Err: err}
	}
	return rec, nil
}

// sanitizeID makes an order id safe to use in a file name.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
