package scheduler

import (
	"errors"
	"fmt"
)

var (
	errNoOrders        = errors.New("no orders to schedule")
	errBlankOrderID    = errors.New("order with blank id")
	errNegativeDelay   = errors.New("delays must not be negative")
	errBatchSize       = errors.New("max concurrent must be at least 1")
	errNegativeRetries = errors.New("retry attempts must not be negative")
	errNoSchedule      = errors.New("no schedule built")
	errRunInProgress   = errors.New("a run is already in progress")
)

// Reason classifies a scheduling failure.
type Reason string

const (
	// ReasonInvalidInput: the order list or timing configuration cannot be
	// scheduled (empty list, blank order id, negative timing value).
	ReasonInvalidInput Reason = "invalid_input"
	// ReasonExhaustedRetries: one order failed every generation attempt;
	// the rest of the run was aborted.
	ReasonExhaustedRetries Reason = "exhausted_retries"
)

// SchedulingError reports a failed schedule build or an aborted run.
type SchedulingError struct {
	Reason   Reason
	OrderID  string
	Attempts int
	Err      error
}

func (e *SchedulingError) Error() string {
	msg := fmt.Sprintf("scheduling: %s", e.Reason)
	if e.OrderID != "" {
		msg = fmt.Sprintf("%s (order %s", msg, e.OrderID)
		if e.Attempts > 0 {
			msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from err, or "" if err is not a
// SchedulingError.
func ReasonOf(err error) Reason {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}
