package scheduler

import (
	"math"

	"github.com/example/receiptflow/internal/domain/order"
)

// Override adjusts one order's delay: Delay replaces the computed value
// outright, Offset shifts the batch-based default. Delay wins when both are
// set. Values are milliseconds and may be fractional; the final delay is
// rounded to a whole millisecond.
type Override struct {
	Delay  *float64
	Offset *float64
}

// TimingConfig drives delay computation and retry behavior. All durations
// are milliseconds.
type TimingConfig struct {
	// DelayBetweenOrders separates consecutive delay batches and is also
	// the wait before each retry.
	DelayBetweenOrders int64
	// MaxConcurrent is the batch size: orders are grouped into batches of
	// this size sharing one base delay. Dispatch stays strictly sequential;
	// this knob only affects delay computation.
	MaxConcurrent int
	// RetryAttempts is the number of additional attempts after the first
	// failure for an order.
	RetryAttempts int
	// InitialDelay shifts the whole schedule.
	InitialDelay int64
	// MinimumDelay floors every computed delay.
	MinimumDelay int64
	// Overrides maps order ids to explicit delay overrides.
	Overrides map[string]Override
	// Resolve, when set, is evaluated per order and takes precedence over
	// Overrides and the order's own timing hint. A nil result falls through.
	Resolve func(order.Order) *Override
}

// DefaultTimingConfig returns the standard timing: 5s between batches,
// batches of one, three retries.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		DelayBetweenOrders: 5000,
		MaxConcurrent:      1,
		RetryAttempts:      3,
	}
}

func (c TimingConfig) validate() error {
	if c.DelayBetweenOrders < 0 || c.InitialDelay < 0 || c.MinimumDelay < 0 {
		return &SchedulingError{Reason: ReasonInvalidInput, Err: errNegativeDelay}
	}
	if c.MaxConcurrent < 1 {
		return &SchedulingError{Reason: ReasonInvalidInput, Err: errBatchSize}
	}
	if c.RetryAttempts < 0 {
		return &SchedulingError{Reason: ReasonInvalidInput, Err: errNegativeRetries}
	}
	return nil
}

// delayFor computes the delay for the order at position index. Resolution
// order: resolver delay, resolver offset, per-id override, the order's own
// timing hint, then the batch default. The result is floored at MinimumDelay
// and rounded to the nearest whole millisecond.
func (c TimingConfig) delayFor(o order.Order, index int) int64 {
	batchDefault := float64(c.InitialDelay) + float64(index/c.MaxConcurrent)*float64(c.DelayBetweenOrders)

	delay := batchDefault
	if ov := c.overrideFor(o); ov != nil {
		if ov.Delay != nil {
			delay = *ov.Delay
		} else {
			delay = batchDefault + *ov.Offset
		}
	} else if o.TimingHint != nil {
		delay = *o.TimingHint
	}

	if min := float64(c.MinimumDelay); delay < min {
		delay = min
	}
	if delay < 0 {
		delay = 0
	}
	return int64(math.Round(delay))
}

// overrideFor returns the override that applies to o, the resolver winning
// over the per-id map. An override carrying neither value falls through.
func (c TimingConfig) overrideFor(o order.Order) *Override {
	if c.Resolve != nil {
		if ov := c.Resolve(o); ov != nil && (ov.Delay != nil || ov.Offset != nil) {
			return ov
		}
	}
	if ov, ok := c.Overrides[o.ID]; ok && (ov.Delay != nil || ov.Offset != nil) {
		return &ov
	}
	return nil
}
