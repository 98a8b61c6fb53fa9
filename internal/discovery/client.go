package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
)

// PageSize is the vendor's fixed search page size.
const PageSize = 25

// OrderTypeTagInStore is the order-type tag the details endpoint expects
// for in-store purchases.
const OrderTypeTagInStore = "in-store_instore"

// Doer is the subset of *http.Client the discovery client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is one page of discovered orders.
type Page struct {
	Number       int
	TotalResults int
	Orders       []order.Order
}

// HTTPClient discovers orders through the vendor search endpoint.
type HTTPClient struct {
	httpClient Doer
	searchURL  string
}

func NewHTTPClient(searchURL string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		searchURL:  searchURL,
	}
}

// WithDoer replaces the underlying HTTP client; used by tests.
func (c *HTTPClient) WithDoer(d Doer) *HTTPClient {
	c.httpClient = d
	return c
}

// searchRequest mirrors the vendor search body. The flag soup is part of
// the endpoint's contract; every field is sent explicitly.
type searchRequest struct {
	Request searchBody `json:"request"`
}

type searchBody struct {
	Criteria                  searchCriteria `json:"criteria"`
	IsRetailUS                bool           `json:"isRetailUS"`
	ApprovalOrdersOnly        bool           `json:"approvalOrdersOnly"`
	IncludeDeclinedOrders     bool           `json:"includeDeclinedOrders"`
	StandAloneMode            bool           `json:"standAloneMode"`
	TestOrdersOnly            bool           `json:"testOrdersOnly"`
	Origin                    string         `json:"origin"`
	ViewAllOrders             bool           `json:"viewAllOrders"`
	IsOrderManagementDisabled bool           `json:"isOrderManagementDisabled"`
	Is3PP                     bool           `json:"is3PP"`
}

type searchCriteria struct {
	SortBy     string `json:"sortBy"`
	SortOrder  string `json:"sortOrder,omitempty"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
}

type searchResponse struct {
	TotalResults     int         `json:"totalResults"`
	OrderDetailsList []searchRow `json:"orderDetailsList"`
}

type searchRow struct {
	OrderNumber        string `json:"orderNumber"`
	OrderDate          string `json:"orderDate"`
	CustomerNumber     string `json:"customerNumber"`
	KeyForOrderDetails string `json:"keyForOrderDetails"`
	OrderURL           string `json:"orderURL"`
}

func requestFor(kind order.Kind, page int) searchRequest {
	criteria := searchCriteria{PageNumber: page, PageSize: PageSize}
	inStore := kind == order.KindInStore
	if !inStore {
		criteria.SortBy = "orderdate"
		criteria.SortOrder = "asc"
	}
	return searchRequest{Request: searchBody{Criteria: criteria, IsRetailUS: inStore}}
}

// Search fetches one page of orders of the given kind.
func (c *HTTPClient) Search(ctx context.Context, kind order.Kind, page int) (Page, error) {
	body, err := json.Marshal(requestFor(kind, page))
	if err != nil {
		return Page{}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("search page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("search page %d: upstream status %d", page, resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Page{}, fmt.Errorf("decode search page %d: %w", page, err)
	}

	result := Page{Number: page, TotalResults: sr.TotalResults}
	for _, row := range sr.OrderDetailsList {
		o, err := order.New(row.OrderNumber, row.OrderDate, kind)
		if err != nil {
			return Page{}, fmt.Errorf("search page %d: %w", page, err)
		}
		o.CustomerNumber = row.CustomerNumber
		o.VendorLookupKey = row.KeyForOrderDetails
		o.DetailsReference = row.OrderURL
		if kind == order.KindInStore {
			o.OrderTypeTag = OrderTypeTagInStore
		} else {
			o.OrderTypeTag = string(order.KindOnline)
		}
		result.Orders = append(result.Orders, o)
	}
	return result, nil
}

// All walks every search page for the given kind. onPage, when non-nil, is
// called after each page fetch (progress reporting, politeness delays).
func (c *HTTPClient) All(ctx context.Context, kind order.Kind, onPage func(Page)) ([]order.Order, error) {
	var orders []order.Order
	page := 1
	totalPages := 1
	for page <= totalPages {
		p, err := c.Search(ctx, kind, page)
		if err != nil {
			return nil, err
		}
		if page == 1 {
			totalPages = (p.TotalResults + PageSize - 1) / PageSize
		}
		orders = append(orders, p.Orders...)
		if onPage != nil {
			onPage(p)
		}
		page++
	}
	return orders, nil
}
