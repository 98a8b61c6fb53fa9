package order

import (
	"errors"
	"fmt"
)

// Kind distinguishes where a purchase was made.
type Kind string

const (
	KindOnline  Kind = "online"
	KindInStore Kind = "in-store"
)

// DefaultDisposition is used when a return record carries no disposition type.
const DefaultDisposition = "UNKNOWN"

var (
	ErrEmptyID          = errors.New("order id must not be empty")
	ErrEmptyDate        = errors.New("order date must not be empty")
	ErrInvalidKind      = errors.New("order kind must be online or in-store")
	ErrEmptySKU         = errors.New("item sku must not be empty")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	ErrNegativeRefund   = errors.New("refund total must not be negative")
)

// CouponLine is one applied coupon on an order item.
type CouponLine struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// OrderItem is one purchased line on an order.
type OrderItem struct {
	SKU               string       `json:"sku"`
	Title             string       `json:"title"`
	ImageRef          string       `json:"image_ref,omitempty"`
	UnitPrice         float64      `json:"unit_price"`
	QuantityOrdered   int          `json:"quantity_ordered"`
	QuantityFulfilled int          `json:"quantity_fulfilled"`
	LineTotal         float64      `json:"line_total"`
	CouponTotal       float64      `json:"coupon_total"`
	CouponBreakdown   []CouponLine `json:"coupon_breakdown,omitempty"`
	TaxTotal          float64      `json:"tax_total"`
	StatusCode        int          `json:"status_code"`
	StatusText        string       `json:"status_text,omitempty"`
}

// Validate checks the OrderItem invariants.
func (i OrderItem) Validate() error {
	if i.SKU == "" {
		return ErrEmptySKU
	}
	if i.UnitPrice < 0 || i.LineTotal < 0 || i.CouponTotal < 0 || i.TaxTotal < 0 {
		return fmt.Errorf("item %s: %w", i.SKU, ErrNegativeAmount)
	}
	if i.QuantityOrdered < 0 || i.QuantityFulfilled < 0 {
		return fmt.Errorf("item %s: %w", i.SKU, ErrNegativeQuantity)
	}
	return nil
}

// ReturnOrder is a return against a parent order. The vendor splits a single
// return across shipments, so one return record can yield several of these.
type ReturnOrder struct {
	ReturnID         string      `json:"return_id"`
	ParentOrderID    string      `json:"parent_order_id"`
	ReturnedDate     string      `json:"returned_date,omitempty"`
	DispositionType  string      `json:"disposition_type"`
	StatusCode       int         `json:"status_code"`
	StatusText       string      `json:"status_text,omitempty"`
	MerchandiseTotal float64     `json:"merchandise_total"`
	CouponTotal      float64     `json:"coupon_total"`
	ShippingRefund   float64     `json:"shipping_refund"`
	TaxRefund        float64     `json:"tax_refund"`
	RefundTotal      float64     `json:"refund_total"`
	Items            []OrderItem `json:"items,omitempty"`
	VendorLookupKey  string      `json:"vendor_lookup_key,omitempty"`
}

// Validate checks the ReturnOrder invariants.
func (r ReturnOrder) Validate() error {
	if r.RefundTotal < 0 {
		return fmt.Errorf("return %s: %w", r.ReturnID, ErrNegativeRefund)
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("return %s: %w", r.ReturnID, err)
		}
	}
	return nil
}

// Financials holds the order-level money totals. All fields default to 0
// when the upstream payload omits them.
type Financials struct {
	MerchandiseTotal float64 `json:"merchandise_total"`
	DiscountsTotal   float64 `json:"discounts_total"`
	CouponsTotal     float64 `json:"coupons_total"`
	ShippingTotal    float64 `json:"shipping_total"`
	TaxesTotal       float64 `json:"taxes_total"`
	GrandTotal       float64 `json:"grand_total"`
}

// StoreInfo describes the physical store an in-store order was placed at.
type StoreInfo struct {
	Number       string `json:"number"`
	AddressLine1 string `json:"address_line1,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
}

// Order identifies one purchase. Orders are immutable after construction:
// enrichment produces a new Order value via WithDetails, never a mutation.
type Order struct {
	ID               string        `json:"id"`
	Date             string        `json:"date"`
	Kind             Kind          `json:"kind"`
	DetailsReference string        `json:"details_reference,omitempty"`
	VendorLookupKey  string        `json:"vendor_lookup_key,omitempty"`
	OrderTypeTag     string        `json:"order_type_tag,omitempty"`
	CustomerNumber   string        `json:"customer_number,omitempty"`
	TimingHint       *float64      `json:"timing_hint,omitempty"`
	Items            []OrderItem   `json:"items,omitempty"`
	Returns          []ReturnOrder `json:"returns,omitempty"`
	Financials       *Financials   `json:"financials,omitempty"`
	StoreInfo        *StoreInfo    `json:"store_info,omitempty"`
	Enriched         bool          `json:"enriched"`
}

// New constructs a discovery-form Order. ID and Date are fixed for the life
// of the value; enrichment only ever adds data on a copy.
func New(id, date string, kind Kind) (Order, error) {
	if id == "" {
		return Order{}, ErrEmptyID
	}
	if date == "" {
		return Order{}, ErrEmptyDate
	}
	if kind != KindOnline && kind != KindInStore {
		return Order{}, ErrInvalidKind
	}
	return Order{ID: id, Date: date, Kind: kind}, nil
}

// Details is the data enrichment adds to a discovered order.
type Details struct {
	Items      []OrderItem
	Returns    []ReturnOrder
	Financials Financials
	StoreInfo  *StoreInfo
}

// WithDetails returns a copy of the order populated with the given details
// and marked enriched. Every item and return is validated; the receiver is
// never modified. Empty item/return sequences are valid.
func (o Order) WithDetails(d Details) (Order, error) {
	for _, item := range d.Items {
		if err := item.Validate(); err != nil {
			return Order{}, fmt.Errorf("order %s: %w", o.ID, err)
		}
	}
	returns := make([]ReturnOrder, len(d.Returns))
	for idx, ret := range d.Returns {
		if ret.ParentOrderID == "" {
			ret.ParentOrderID = o.ID
		}
		if ret.DispositionType == "" {
			ret.DispositionType = DefaultDisposition
		}
		if err := ret.Validate(); err != nil {
			return Order{}, fmt.Errorf("order %s: %w", o.ID, err)
		}
		returns[idx] = ret
	}

	enriched := o
	enriched.Items = append([]OrderItem(nil), d.Items...)
	enriched.Returns = returns
	fin := d.Financials
	enriched.Financials = &fin
	if d.StoreInfo != nil {
		info := *d.StoreInfo
		enriched.StoreInfo = &info
	}
	enriched.Enriched = true
	return enriched, nil
}
