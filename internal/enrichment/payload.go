package enrichment

import (
	"errors"

	"github.com/example/receiptflow/internal/domain/order"
)

// ShipmentLinesKey is the fixed key the vendor uses inside
// containerIdVsShipmentLinesMap to hold a shipment's line items. The name is
// the vendor's, not ours.
const ShipmentLinesKey = "dummyKey"

var errMissingDetail = errors.New("payload missing orderDetails.orderDetails path")

// envelope mirrors the vendor response. The three levels of nesting are
// pointers so an absent level is detectable instead of silently zero.
type envelope struct {
	PTDOrderDetails *outerDetails `json:"ptdOrderDetails"`
}

type outerDetails struct {
	OrderDetails *innerDetails `json:"orderDetails"`
}

type innerDetails struct {
	OrderDetails *orderDetail `json:"orderDetails"`
}

type orderDetail struct {
	OrderNumber                 string         `json:"orderNumber"`
	OrderDate                   string         `json:"orderDate"`
	MasterAccountNumber         string         `json:"masterAccountNumber"`
	MerchandiseTotal            float64        `json:"merchandiseTotal"`
	DiscountsTotal              float64        `json:"discountsTotal"`
	CouponsTotal                float64        `json:"couponsTotal"`
	ShippingAndHandlingFeeTotal float64        `json:"shippingAndHandlingFeeTotal"`
	TaxesTotal                  float64        `json:"taxesTotal"`
	GrandTotal                  float64        `json:"grandTotal"`
	StoreNumber                 string         `json:"storeNumber"`
	StoreAddress                *storeAddress  `json:"storeAddress"`
	TransactionBarCode          string         `json:"transactionBarCode"`
	IsReturnable                bool           `json:"isReturnable"`
	Shipments                   []shipment     `json:"shipments"`
	ReturnOrders                []returnRecord `json:"returnOrders"`
}

type storeAddress struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
}

type shipment struct {
	Lines map[string][]lineItem `json:"containerIdVsShipmentLinesMap"`
}

type lineItem struct {
	SKU               string       `json:"productSku"`
	Name              string       `json:"productName"`
	ImageURL          string       `json:"productImage"`
	UnitPrice         float64      `json:"unitPrice"`
	OrderedQty        int          `json:"orderQty"`
	FulfilledQty      int          `json:"shippedQty"`
	LineTotal         float64      `json:"total"`
	CouponTotal       float64      `json:"couponTotal"`
	Coupons           []couponLine `json:"couponDetails"`
	TaxTotal          float64      `json:"taxTotal"`
	StatusCode        int          `json:"statusCode"`
	StatusDescription string       `json:"statusDescription"`
}

type couponLine struct {
	Name   string  `json:"couponName"`
	Amount float64 `json:"couponAmount"`
}

type returnRecord struct {
	ReturnOrderNumber     string           `json:"returnOrderNumber"`
	MasterOrderNumber     string           `json:"masterOrderNumber"`
	ReturnedDate          string           `json:"returnedDate"`
	ReturnDispositionType string           `json:"returnDispositionType"`
	OrderURLKey           string           `json:"orderUrlKey"`
	ReturnShipments       []returnShipment `json:"returnShipments"`
}

type returnShipment struct {
	TrackingInfo     *trackingInfo         `json:"trackingInfo"`
	MerchandiseTotal float64               `json:"merchandiseTotal"`
	CouponTotal      float64               `json:"couponTotal"`
	ShippingFees     float64               `json:"shippingFees"`
	TaxTotal         float64               `json:"taxTotal"`
	GrandTotal       float64               `json:"grandTotal"`
	Lines            map[string][]lineItem `json:"containerIdVsShipmentLinesMap"`
}

type trackingInfo struct {
	StatusCode        int    `json:"statusCode"`
	StatusDescription string `json:"statusDescription"`
}

// detail navigates the three nesting levels to the actual order-detail
// record. Any absent level is an error, never a silent nil.
func (e envelope) detail() (*orderDetail, error) {
	if e.PTDOrderDetails == nil || e.PTDOrderDetails.OrderDetails == nil || e.PTDOrderDetails.OrderDetails.OrderDetails == nil {
		return nil, errMissingDetail
	}
	return e.PTDOrderDetails.OrderDetails.OrderDetails, nil
}

// toDetails flattens the detail record into domain order details: all
// shipments' lines concatenated in shipment order, one ReturnOrder per
// return-shipment, financials and store info from the top level.
func (d *orderDetail) toDetails() order.Details {
	var items []order.OrderItem
	for _, s := range d.Shipments {
		for _, line := range s.Lines[ShipmentLinesKey] {
			items = append(items, line.toItem())
		}
	}

	var returns []order.ReturnOrder
	for _, rec := range d.ReturnOrders {
		for _, rs := range rec.ReturnShipments {
			var retItems []order.OrderItem
			for _, line := range rs.Lines[ShipmentLinesKey] {
				retItems = append(retItems, line.toItem())
			}
			ret := order.ReturnOrder{
				ReturnID:         rec.ReturnOrderNumber,
				ParentOrderID:    rec.MasterOrderNumber,
				ReturnedDate:     rec.ReturnedDate,
				DispositionType:  rec.ReturnDispositionType,
				MerchandiseTotal: rs.MerchandiseTotal,
				CouponTotal:      rs.CouponTotal,
				ShippingRefund:   rs.ShippingFees,
				TaxRefund:        rs.TaxTotal,
				RefundTotal:      rs.GrandTotal,
				Items:            retItems,
				VendorLookupKey:  rec.OrderURLKey,
			}
			if rs.TrackingInfo != nil {
				ret.StatusCode = rs.TrackingInfo.StatusCode
				ret.StatusText = rs.TrackingInfo.StatusDescription
			}
			returns = append(returns, ret)
		}
	}

	details := order.Details{
		Items:   items,
		Returns: returns,
		Financials: order.Financials{
			MerchandiseTotal: d.MerchandiseTotal,
			DiscountsTotal:   d.DiscountsTotal,
			CouponsTotal:     d.CouponsTotal,
			ShippingTotal:    d.ShippingAndHandlingFeeTotal,
			TaxesTotal:       d.TaxesTotal,
			GrandTotal:       d.GrandTotal,
		},
	}

	// A store number means the order was placed in a store; online orders
	// get no StoreInfo at all, not a zero value.
	if d.StoreNumber != "" {
		info := &order.StoreInfo{Number: d.StoreNumber}
		if d.StoreAddress != nil {
			info.AddressLine1 = d.StoreAddress.AddressLine1
			info.City = d.StoreAddress.City
			info.State = d.StoreAddress.State
			info.ZipCode = d.StoreAddress.ZipCode
		}
		details.StoreInfo = info
	}
	return details
}

func (l lineItem) toItem() order.OrderItem {
	item := order.OrderItem{
		SKU:               l.SKU,
		Title:             l.Name,
		ImageRef:          l.ImageURL,
		UnitPrice:         l.UnitPrice,
		QuantityOrdered:   l.OrderedQty,
		QuantityFulfilled: l.FulfilledQty,
		LineTotal:         l.LineTotal,
		CouponTotal:       l.CouponTotal,
		TaxTotal:          l.TaxTotal,
		StatusCode:        l.StatusCode,
		StatusText:        l.StatusDescription,
	}
	for _, c := range l.Coupons {
		item.CouponBreakdown = append(item.CouponBreakdown, order.CouponLine{Name: c.Name, Amount: c.Amount})
	}
	return item
}
