// Package export flattens archived orders into spreadsheet-friendly rows.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/example/receiptflow/internal/domain/order"
)

var header = []string{
	"Order Number",
	"Order Date",
	"Order Kind",
	"Customer Number",
	"Store Number",
	"Store City",
	"Store State",
	"Grand Total",
	"Product SKU",
	"Product Name",
	"Unit Price",
	"Quantity",
	"Fulfilled",
	"Line Total",
	"Coupon Total",
	"Tax Total",
	"Line Status",
}

// WriteTSV writes one tab-separated row per order item. An order with no
// items still produces a single row carrying the order-level columns.
func WriteTSV(w io.Writer, orders []order.Order) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, o := range orders {
		if len(o.Items) == 0 {
			if err := cw.Write(rowFor(o, nil)); err != nil {
				return fmt.Errorf("write order %s: %w", o.ID, err)
			}
			continue
		}
		for i := range o.Items {
			if err := cw.Write(rowFor(o, &o.Items[i])); err != nil {
				return fmt.Errorf("write order %s: %w", o.ID, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func rowFor(o order.Order, item *order.OrderItem) []string {
	var storeNumber, storeCity, storeState string
	if o.StoreInfo != nil {
		storeNumber = o.StoreInfo.Number
		storeCity = o.StoreInfo.City
		storeState = o.StoreInfo.State
	}
	var grandTotal string
	if o.Financials != nil {
		grandTotal = money(o.Financials.GrandTotal)
	}

	row := []string{
		o.ID,
		o.Date,
		string(o.Kind),
		o.CustomerNumber,
		storeNumber,
		storeCity,
		storeState,
		grandTotal,
		"", "", "", "", "", "", "", "", "",
	}
	if item != nil {
		row[8] = item.SKU
		row[9] = item.Title
		row[10] = money(item.UnitPrice)
		row[11] = fmt.Sprintf("%d", item.QuantityOrdered)
		row[12] = fmt.Sprintf("%d", item.QuantityFulfilled)
		row[13] = money(item.LineTotal)
		row[14] = money(item.CouponTotal)
		row[15] = money(item.TaxTotal)
		row[16] = item.StatusText
	}
	return row
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
