package enrichment

import (
	"errors"
	"fmt"
)

// Reason classifies why an enrichment attempt failed.
type Reason string

const (
	// ReasonMissingKey: the order carries no vendor lookup key; no request
	// was issued.
	ReasonMissingKey Reason = "missing_key"
	// ReasonTransport: the request could not be completed (network error,
	// timeout, cancelled context).
	ReasonTransport Reason = "transport_failure"
	// ReasonUpstreamStatus: the vendor answered with a non-2xx status.
	ReasonUpstreamStatus Reason = "upstream_status"
	// ReasonMalformed: the response body is missing the expected nested
	// structure. Callers must not mistake this for "no items".
	ReasonMalformed Reason = "malformed_response"
)

// EnrichmentError reports a failed Enrich call with enough context to log
// and retry by hand.
type EnrichmentError struct {
	Reason     Reason
	OrderID    string
	StatusCode int
	Err        error
}

func (e *EnrichmentError) Error() string {
	msg := fmt.Sprintf("enrich order %s: %s", e.OrderID, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from err, or "" if err is not an
// EnrichmentError.
func ReasonOf(err error) Reason {
	var ee *EnrichmentError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ""
}
