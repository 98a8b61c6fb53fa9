package scheduler

import (
	"testing"

	"github.com/example/receiptflow/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrders(t *testing.T, ids ...string) []order.Order {
	t.Helper()
	orders := make([]order.Order, len(ids))
	for i, id := range ids {
		o, err := order.New(id, "2024-01-01", order.KindOnline)
		require.NoError(t, err)
		orders[i] = o
	}
	return orders
}

func f64(v float64) *float64 { return &v }

func delaysOf(s *Schedule) []int64 {
	out := make([]int64, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Delay
	}
	return out
}

func idsOf(s *Schedule) []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Order.ID
	}
	return out
}

func TestBuild_SequentialDelays(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	cfg := TimingConfig{DelayBetweenOrders: 250, MaxConcurrent: 1, RetryAttempts: 3}

	sched, err := s.Build(testOrders(t, "o1", "o2", "o3"), cfg)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 250, 500}, delaysOf(sched))
	assert.Equal(t, []string{"o1", "o2", "o3"}, idsOf(sched))
	assert.Equal(t, 3, sched.Total)
	assert.NotEmpty(t, sched.RunID)
}

func TestBuild_BatchedDelays(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	cfg := TimingConfig{DelayBetweenOrders: 250, MaxConcurrent: 2, RetryAttempts: 3}

	sched, err := s.Build(testOrders(t, "o1", "o2", "o3", "o4", "o5"), cfg)
	require.NoError(t, err)

	// Batches of two share a base delay; dispatch stays sequential.
	assert.Equal(t, []int64{0, 0, 250, 250, 500}, delaysOf(sched))
	// Stable on ties: input order preserved within a batch.
	assert.Equal(t, []string{"o1", "o2", "o3", "o4", "o5"}, idsOf(sched))
}

func TestBuild_InitialDelay(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	cfg := TimingConfig{DelayBetweenOrders: 100, MaxConcurrent: 1, InitialDelay: 1000}

	sched, err := s.Build(testOrders(t, "o1", "o2"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1100}, delaysOf(sched))
}

func TestBuild_OverridePrecedence(t *testing.T) {
	orders := testOrders(t, "o1", "o2", "o3", "o4")
	orders[3].TimingHint = f64(42)

	cfg := TimingConfig{
		DelayBetweenOrders: 100,
		MaxConcurrent:      1,
		Overrides: map[string]Override{
			"o1": {Delay: f64(900)},  // beaten by the resolver
			"o2": {Offset: f64(+25)}, // applies: offset shifts the batch default
		},
		Resolve: func(o order.Order) *Override {
			if o.ID == "o1" {
				return &Override{Delay: f64(7)}
			}
			return nil
		},
	}

	s := New(&mockGenerator{}, nil, receiptOpts())
	sched, err := s.Build(orders, cfg)
	require.NoError(t, err)

	// o1: resolver delay 7; o2: batch default 100 + offset 25;
	// o3: batch default 200; o4: timing hint 42.
	assert.Equal(t, []string{"o1", "o4", "o2", "o3"}, idsOf(sched))
	assert.Equal(t, []int64{7, 42, 125, 200}, delaysOf(sched))
}

func TestBuild_ResolverDelayBeatsResolverOffset(t *testing.T) {
	cfg := TimingConfig{
		DelayBetweenOrders: 100,
		MaxConcurrent:      1,
		Resolve: func(order.Order) *Override {
			return &Override{Delay: f64(5), Offset: f64(1000)}
		},
	}

	s := New(&mockGenerator{}, nil, receiptOpts())
	sched, err := s.Build(testOrders(t, "o1"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, delaysOf(sched))
}

func TestBuild_EmptyResolverResultFallsThrough(t *testing.T) {
	cfg := TimingConfig{
		DelayBetweenOrders: 100,
		MaxConcurrent:      1,
		Overrides:          map[string]Override{"o1": {Delay: f64(33)}},
		Resolve:            func(order.Order) *Override { return &Override{} },
	}

	s := New(&mockGenerator{}, nil, receiptOpts())
	sched, err := s.Build(testOrders(t, "o1"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{33}, delaysOf(sched))
}

func TestBuild_MinimumDelayAndRounding(t *testing.T) {
	cfg := TimingConfig{
		DelayBetweenOrders: 100,
		MaxConcurrent:      1,
		MinimumDelay:       50,
		Overrides: map[string]Override{
			"o1": {Delay: f64(-200)},  // clamped up to the minimum
			"o2": {Delay: f64(70.49)}, // rounded down
			"o3": {Delay: f64(70.5)},  // rounded up
		},
	}

	s := New(&mockGenerator{}, nil, receiptOpts())
	sched, err := s.Build(testOrders(t, "o1", "o2", "o3"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 70, 71}, delaysOf(sched))
}

func TestBuild_StableSortOnTies(t *testing.T) {
	cfg := TimingConfig{DelayBetweenOrders: 0, MaxConcurrent: 1}

	s := New(&mockGenerator{}, nil, receiptOpts())
	sched, err := s.Build(testOrders(t, "z", "a", "m"), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, idsOf(sched))
}

func TestBuild_InvalidInput(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	cfg := DefaultTimingConfig()

	_, err := s.Build(nil, cfg)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))

	_, err = s.Build([]order.Order{{ID: ""}}, cfg)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))

	bad := cfg
	bad.MaxConcurrent = 0
	_, err = s.Build(testOrders(t, "o1"), bad)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))

	bad = cfg
	bad.DelayBetweenOrders = -1
	_, err = s.Build(testOrders(t, "o1"), bad)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))

	bad = cfg
	bad.RetryAttempts = -1
	_, err = s.Build(testOrders(t, "o1"), bad)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))
}

func TestDefaultTimingConfig(t *testing.T) {
	cfg := DefaultTimingConfig()
	assert.Equal(t, int64(5000), cfg.DelayBetweenOrders)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Zero(t, cfg.InitialDelay)
	assert.Zero(t, cfg.MinimumDelay)
}
