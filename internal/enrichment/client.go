package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
)

// DefaultEnterpriseCode is sent when the caller configures no tenant code.
const DefaultEnterpriseCode = "RetailUS"

// Client populates a discovered order with full item/return/financial detail.
type Client interface {
	Enrich(ctx context.Context, o order.Order) (order.Order, error)
}

// Doer is the subset of *http.Client the enrichment client needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient fetches order detail from the vendor order-details endpoint.
type HTTPClient struct {
	httpClient     Doer
	baseURL        string
	enterpriseCode string
}

// NewHTTPClient creates an enrichment client against baseURL. An empty
// enterpriseCode falls back to DefaultEnterpriseCode.
func NewHTTPClient(baseURL, enterpriseCode string) *HTTPClient {
	if enterpriseCode == "" {
		enterpriseCode = DefaultEnterpriseCode
	}
	return &HTTPClient{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        baseURL,
		enterpriseCode: enterpriseCode,
	}
}

// WithDoer replaces the underlying HTTP client. Used by tests and by callers
// that need a custom transport or timeout.
func (c *HTTPClient) WithDoer(d Doer) *HTTPClient {
	c.httpClient = d
	return c
}

// detailURL reproduces the vendor's exact query shape:
// {base}?enterpriseCode=..&orderType=..&tp_sid=..&pgIntlO=Y
// Parameter order is part of the external contract, so the query string is
// assembled by hand rather than through url.Values (which sorts keys).
func (c *HTTPClient) detailURL(orderTypeTag, lookupKey string) string {
	return fmt.Sprintf("%s?enterpriseCode=%s&orderType=%s&tp_sid=%s&pgIntlO=Y",
		c.baseURL,
		url.QueryEscape(c.enterpriseCode),
		url.QueryEscape(orderTypeTag),
		url.QueryEscape(lookupKey),
	)
}

// Enrich fetches the vendor detail record for o and returns a new, fully
// populated Order. The input order is never modified; enrichment failures
// for one order never abort a batch — that policy belongs to the caller.
func (c *HTTPClient) Enrich(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		return order.Order{}, &EnrichmentError{Reason: ReasonMissingKey, Err: order.ErrEmptyID}
	}
	if o.VendorLookupKey == "" {
		return order.Order{}, &EnrichmentError{Reason: ReasonMissingKey, OrderID: o.ID, Err: errors.New("order has no vendor lookup key")}
	}

	tag := o.OrderTypeTag
	if tag == "" {
		tag = string(o.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.detailURL(tag, o.VendorLookupKey), nil)
	if err != nil {
		return order.Order{}, &EnrichmentError{Reason: ReasonTransport, OrderID: o.ID, Err: err}
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return order.Order{}, &EnrichmentError{Reason: ReasonTransport, OrderID: o.ID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return order.Order{}, &EnrichmentError{Reason: ReasonUpstreamStatus, OrderID: o.ID, StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return order.Order{}, &EnrichmentError{Reason: ReasonMalformed, OrderID: o.ID, Err: err}
	}

	detail, err := env.detail()
	if err != nil {
		return order.Order{}, &EnrichmentError{Reason: ReasonMalformed, OrderID: o.ID, Err: err}
	}

	enriched, err := o.WithDetails(detail.toDetails())
	if err != nil {
		return order.Order{}, &EnrichmentError{Reason: ReasonMalformed, OrderID: o.ID, Err: err}
	}
	return enriched, nil
}
