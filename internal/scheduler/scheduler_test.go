package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
	"github.com/example/receiptflow/internal/domain/receipt"
	"github.com/example/receiptflow/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptOpts() receipt.Options {
	return receipt.Options{Method: receipt.MethodPrint}
}

// mockGenerator records calls and fails on demand.
type mockGenerator struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int // failures left per order; -1 fails forever
}

func (g *mockGenerator) Generate(ctx context.Context, o order.Order, opts receipt.Options) (receipt.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, o.ID)

	left := g.failures[o.ID]
	if left == -1 {
		return receipt.Receipt{}, &receipt.GenerationError{OrderID: o.ID, Method: opts.Method, Err: errors.New("printer on fire")}
	}
	if left > 0 {
		g.failures[o.ID] = left - 1
		return receipt.Receipt{}, &receipt.GenerationError{OrderID: o.ID, Method: opts.Method, Err: errors.New("transient")}
	}
	return receipt.Receipt{OrderID: o.ID, Method: opts.Method}, nil
}

func (g *mockGenerator) callsFor(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (g *mockGenerator) allCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func fastConfig() TimingConfig {
	return TimingConfig{DelayBetweenOrders: 5, MaxConcurrent: 1, RetryAttempts: 3}
}

func TestStart_CompletesAllOrders(t *testing.T) {
	gen := &mockGenerator{}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	_, err := s.Build(testOrders(t, "o1", "o2", "o3"), fastConfig())
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, s.State())

	var mu sync.Mutex
	var progress []Progress
	s.OnProgress(func(p Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, []string{"o1", "o2", "o3"}, gen.allCalls())

	snap := store.Get()
	assert.Equal(t, 3, snap.Scheduled)
	assert.Equal(t, 3, snap.Completed)
	assert.Zero(t, snap.Failed)
	assert.False(t, snap.IsProcessing)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, progress, 3)
	assert.Equal(t, Progress{RunID: progress[0].RunID, OrderID: "o1", Completed: 1, Failed: 0, Total: 3}, progress[0])
	assert.Equal(t, 3, progress[2].Completed)
}

func TestStart_RetriesThenSucceeds(t *testing.T) {
	gen := &mockGenerator{failures: map[string]int{"o1": 2}}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	_, err := s.Build(testOrders(t, "o1"), fastConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	// 2 failures + 1 success.
	assert.Equal(t, 3, gen.callsFor("o1"))
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 1, store.Get().Completed)
	assert.Zero(t, store.Get().Failed)
}

func TestStart_ExhaustedRetriesAbortsRun(t *testing.T) {
	gen := &mockGenerator{failures: map[string]int{"o1": -1}}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	_, err := s.Build(testOrders(t, "o1", "o2"), fastConfig())
	require.NoError(t, err)

	err = s.Start(context.Background())

	var se *SchedulingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonExhaustedRetries, se.Reason)
	assert.Equal(t, "o1", se.OrderID)
	// 1 initial attempt + 3 retries.
	assert.Equal(t, 4, se.Attempts)
	assert.Equal(t, 4, gen.callsFor("o1"))

	// Fail-fast: o2 is never attempted, partial counts stay visible.
	assert.Zero(t, gen.callsFor("o2"))
	assert.Equal(t, StateFailed, s.State())
	snap := store.Get()
	assert.Equal(t, 1, snap.Failed)
	assert.Zero(t, snap.Completed)
	assert.False(t, snap.IsProcessing)
}

func TestStart_StopDuringWaitSkipsRemainingOrders(t *testing.T) {
	gen := &mockGenerator{}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	cfg := TimingConfig{DelayBetweenOrders: 200, MaxConcurrent: 1, RetryAttempts: 0}
	_, err := s.Build(testOrders(t, "o1", "o2", "o3"), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	// o1 dispatches at delay 0; stop while waiting for o2.
	require.Eventually(t, func() bool { return gen.callsFor("o1") == 1 }, time.Second, time.Millisecond)
	s.Stop()

	require.NoError(t, <-done) // cancellation exits without raising
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, []string{"o1"}, gen.allCalls())

	snap := store.Get()
	assert.Equal(t, 1, snap.Completed)
	assert.Zero(t, snap.Failed)
	assert.False(t, snap.IsProcessing)
}

func TestStart_StopDuringRetryWait(t *testing.T) {
	gen := &mockGenerator{failures: map[string]int{"o1": -1}}
	s := New(gen, status.NewStore(), receiptOpts())

	cfg := TimingConfig{DelayBetweenOrders: 200, MaxConcurrent: 1, RetryAttempts: 5}
	_, err := s.Build(testOrders(t, "o1"), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return gen.callsFor("o1") == 1 }, time.Second, time.Millisecond)
	s.Stop()

	require.NoError(t, <-done)
	assert.Equal(t, StateCancelled, s.State())
	// The in-flight attempt is not retried after the stop.
	assert.Equal(t, 1, gen.callsFor("o1"))
}

func TestStart_ContextCancellation(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, status.NewStore(), receiptOpts())

	cfg := TimingConfig{DelayBetweenOrders: 500, MaxConcurrent: 1}
	_, err := s.Build(testOrders(t, "o1", "o2"), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return gen.callsFor("o1") == 1 }, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, StateCancelled, s.State())
	assert.Zero(t, gen.callsFor("o2"))
}

func TestStart_WithoutScheduleFails(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	err := s.Start(context.Background())
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))
}

func TestStop_IdempotentAndNoOpWhenIdle(t *testing.T) {
	s := New(&mockGenerator{}, nil, receiptOpts())
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
	assert.Equal(t, StateIdle, s.State())
}

func TestBuild_RejectedWhileRunning(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, receiptOpts())

	cfg := TimingConfig{DelayBetweenOrders: 200, MaxConcurrent: 1}
	_, err := s.Build(testOrders(t, "o1", "o2"), cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, time.Millisecond)

	_, err = s.Build(testOrders(t, "o9"), cfg)
	assert.Equal(t, ReasonInvalidInput, ReasonOf(err))

	s.Stop()
	require.NoError(t, <-done)
}

func TestBuild_ResetsStatusOnReschedule(t *testing.T) {
	gen := &mockGenerator{}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	_, err := s.Build(testOrders(t, "o1"), fastConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, store.Get().Completed)

	// Re-scheduling starts the status from scratch; nothing from the first
	// run survives.
	_, err = s.Build(testOrders(t, "o2"), fastConfig())
	require.NoError(t, err)

	snap := store.Get()
	assert.Equal(t, 1, snap.Scheduled)
	assert.Zero(t, snap.Completed)
	assert.Zero(t, snap.Failed)
	assert.Empty(t, snap.Activities)
}

func TestStart_WhileRunningSharesOutcome(t *testing.T) {
	gen := &mockGenerator{failures: map[string]int{"o1": -1}}
	s := New(gen, status.NewStore(), receiptOpts())

	cfg := TimingConfig{DelayBetweenOrders: 100, MaxConcurrent: 1, RetryAttempts: 1}
	_, err := s.Build(testOrders(t, "o1"), cfg)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background()) }()
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, time.Millisecond)

	// The second Start does not spawn a run; it waits for the in-flight one
	// and reports the same outcome.
	secondErr := s.Start(context.Background())
	firstErr := <-first

	require.Error(t, firstErr)
	assert.Equal(t, firstErr, secondErr)
	assert.Equal(t, ReasonExhaustedRetries, ReasonOf(secondErr))
	assert.Equal(t, 2, gen.callsFor("o1"))
}

func TestSchedulerIsReusableAfterARun(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, status.NewStore(), receiptOpts())

	_, err := s.Build(testOrders(t, "o1"), fastConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateCompleted, s.State())

	_, err = s.Build(testOrders(t, "o2"), fastConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, []string{"o1", "o2"}, gen.allCalls())
}

func TestOnProgress_Unsubscribe(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, receiptOpts())

	var mu sync.Mutex
	count := 0
	unsubscribe := s.OnProgress(func(Progress) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()

	_, err := s.Build(testOrders(t, "o1"), fastConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestOnProgress_PanicIsContained(t *testing.T) {
	gen := &mockGenerator{}
	s := New(gen, nil, receiptOpts())
	s.OnProgress(func(Progress) { panic("boom") })

	_, err := s.Build(testOrders(t, "o1"), fastConfig())
	require.NoError(t, err)
	assert.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateCompleted, s.State())
}

func TestStart_ActivityLogIsBounded(t *testing.T) {
	gen := &mockGenerator{}
	store := status.NewStore()
	s := New(gen, store, receiptOpts())

	ids := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		ids = append(ids, string(rune('a'+i)))
	}
	_, err := s.Build(testOrders(t, ids...), TimingConfig{DelayBetweenOrders: 1, MaxConcurrent: 15})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.LessOrEqual(t, len(store.Get().Activities), status.MaxActivities)
}
