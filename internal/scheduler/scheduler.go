package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/example/receiptflow/internal/domain/order"
	"github.com/example/receiptflow/internal/domain/receipt"
	"github.com/example/receiptflow/internal/status"
	"github.com/google/uuid"
)

// State of one scheduler run.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	StateIdle:      {StateScheduled},
	StateScheduled: {StateScheduled, StateRunning},
	StateRunning:   {StateCompleted, StateCancelled, StateFailed},
	StateCompleted: {StateScheduled},
	StateCancelled: {StateScheduled},
	StateFailed:    {StateScheduled},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Entry pairs an order with its computed delay in milliseconds from the
// run's start instant.
type Entry struct {
	Order order.Order `json:"order"`
	Delay int64       `json:"delay"`
}

// Schedule is the full execution plan for one run, immutable once built.
type Schedule struct {
	RunID   string  `json:"run_id"`
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

// Progress is delivered to OnProgress subscribers after every counter
// mutation.
type Progress struct {
	RunID     string
	OrderID   string
	Completed int
	Failed    int
	Total     int
}

// Scheduler turns a list of enriched orders into a time-ordered, retrying,
// cancellable execution plan. Each Scheduler owns its run state; there are
// no process-wide counters or timer lists.
type Scheduler struct {
	generator receipt.Generator
	sink      status.Sink
	opts      receipt.Options

	mu        sync.Mutex
	state     State
	schedule  *Schedule
	cfg       TimingConfig
	cancel    chan struct{}
	cancelled bool
	done      chan struct{}
	runErr    error
	completed int
	failed    int
	subs      map[int]func(Progress)
	nextSub   int

	nowFunc func() time.Time
}

// New creates an idle scheduler dispatching through gen and reporting
// through sink.
func New(gen receipt.Generator, sink status.Sink, opts receipt.Options) *Scheduler {
	if sink == nil {
		sink = nopSink{}
	}
	return &Scheduler{
		generator: gen,
		sink:      sink,
		opts:      opts,
		state:     StateIdle,
		subs:      make(map[int]func(Progress)),
		nowFunc:   time.Now,
	}
}

type nopSink struct{}

func (nopSink) Update(status.Event) {}

// State returns the current run state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnProgress subscribes fn to progress updates; the returned function
// unsubscribes it. Callbacks run synchronously on the scheduler's goroutine
// in mutation order; panics are logged, never propagated.
func (s *Scheduler) OnProgress(fn func(Progress)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Build computes the execution plan for the given orders and stores it for
// Start. Entries are sorted ascending by delay, stable on ties. Building
// while a run is in progress is an error.
func (s *Scheduler) Build(orders []order.Order, cfg TimingConfig) (*Schedule, error) {
	if len(orders) == 0 {
		return nil, &SchedulingError{Reason: ReasonInvalidInput, Err: errNoOrders}
	}
	for _, o := range orders {
		if o.ID == "" {
			return nil, &SchedulingError{Reason: ReasonInvalidInput, Err: errBlankOrderID}
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(orders))
	for i, o := range orders {
		entries[i] = Entry{Order: o, Delay: cfg.delayFor(o, i)}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Delay < entries[j].Delay })

	sched := &Schedule{
		RunID:   uuid.New().String(),
		Entries: entries,
		Total:   len(entries),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, StateScheduled) {
		return nil, &SchedulingError{Reason: ReasonInvalidInput, Err: errRunInProgress}
	}
	s.state = StateScheduled
	s.schedule = sched
	s.cfg = cfg
	s.completed = 0
	s.failed = 0

	// Re-scheduling is the only thing that resets the status; counters from
	// a prior run never leak into the new one.
	s.sink.Update(status.Event{Type: status.EventReset})
	s.sink.Update(status.Event{Type: status.EventProgress, ScheduledDelta: sched.Total})
	return sched, nil
}

// Start executes the built schedule until completion, cancellation, or the
// first order that exhausts its retries (fail-fast: the remainder of the run
// is aborted and the partial counters stay visible in the status). Calling
// Start while a run is in progress does not start anything; the caller
// blocks until that run finishes and receives its outcome.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		done := s.done
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.runErr
	}
	if s.state != StateScheduled || s.schedule == nil {
		s.mu.Unlock()
		return &SchedulingError{Reason: ReasonInvalidInput, Err: errNoSchedule}
	}
	s.state = StateRunning
	s.cancelled = false
	s.cancel = make(chan struct{})
	s.done = make(chan struct{})
	cancel := s.cancel
	done := s.done
	sched := s.schedule
	cfg := s.cfg
	s.mu.Unlock()

	err := s.run(ctx, cancel, sched, cfg)

	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
	close(done)
	return err
}

func (s *Scheduler) run(ctx context.Context, cancel <-chan struct{}, sched *Schedule, cfg TimingConfig) error {
	s.sink.Update(status.Event{Type: status.EventProgress, Processing: ptr(true)})
	s.sink.Update(status.NewActivity(status.ActivityInfo, "run started: "+sched.RunID))
	started := s.nowFunc()

	for _, entry := range sched.Entries {
		remaining := time.Duration(entry.Delay)*time.Millisecond - s.nowFunc().Sub(started)
		if !s.wait(ctx, cancel, remaining) {
			return s.finishCancelled()
		}
		if err := s.dispatch(ctx, cancel, cfg, sched, entry); err != nil {
			if _, ok := err.(*runCancelled); ok {
				return s.finishCancelled()
			}
			s.finish(StateFailed)
			return err
		}
	}

	s.finish(StateCompleted)
	s.sink.Update(status.NewActivity(status.ActivitySuccess, "run completed: "+sched.RunID))
	return nil
}

// runCancelled is an internal signal, never returned to callers.
type runCancelled struct{}

func (*runCancelled) Error() string { return "run cancelled" }

// dispatch attempts one entry, retrying up to cfg.RetryAttempts additional
// times with a DelayBetweenOrders wait between attempts.
func (s *Scheduler) dispatch(ctx context.Context, cancel <-chan struct{}, cfg TimingConfig, sched *Schedule, entry Entry) error {
	attempts := 0
	for {
		// Cancellation is checked before every generator invocation; an
		// attempt already dispatched is never retried after a stop.
		if stopped(ctx, cancel) {
			return &runCancelled{}
		}

		attempts++
		_, err := s.generator.Generate(ctx, entry.Order, s.opts)
		if err == nil {
			s.recordResult(sched, entry.Order.ID, true)
			s.sink.Update(status.NewActivity(status.ActivitySuccess, "receipt generated for order "+entry.Order.ID))
			return nil
		}

		log.Printf("[scheduler] order %s attempt %d failed: %v", entry.Order.ID, attempts, err)
		if attempts > cfg.RetryAttempts {
			s.recordResult(sched, entry.Order.ID, false)
			s.sink.Update(status.NewActivity(status.ActivityError, "giving up on order "+entry.Order.ID))
			return &SchedulingError{
				Reason:   ReasonExhaustedRetries,
				OrderID:  entry.Order.ID,
				Attempts: attempts,
				Err:      err,
			}
		}

		s.sink.Update(status.NewActivity(status.ActivityInfo, "retrying order "+entry.Order.ID))
		if !s.wait(ctx, cancel, time.Duration(cfg.DelayBetweenOrders)*time.Millisecond) {
			return &runCancelled{}
		}
	}
}

// recordResult updates the run counters, the status sink, and the progress
// subscribers for one attempted order.
func (s *Scheduler) recordResult(sched *Schedule, orderID string, ok bool) {
	s.mu.Lock()
	if ok {
		s.completed++
	} else {
		s.failed++
	}
	p := Progress{
		RunID:     sched.RunID,
		OrderID:   orderID,
		Completed: s.completed,
		Failed:    s.failed,
		Total:     sched.Total,
	}
	subs := make([]func(Progress), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	ev := status.Event{Type: status.EventProgress}
	if ok {
		ev.CompletedDelta = 1
	} else {
		ev.FailedDelta = 1
	}
	s.sink.Update(ev)

	for _, fn := range subs {
		emit(fn, p)
	}
}

func emit(fn func(Progress), p Progress) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] progress callback panic: %v", r)
		}
	}()
	fn(p)
}

// Stop requests cancellation of the in-flight run. Idempotent; a no-op when
// nothing is running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.cancelled {
		return
	}
	s.cancelled = true
	close(s.cancel)
}

// wait suspends for d, returning false if the run was cancelled mid-wait.
func (s *Scheduler) wait(ctx context.Context, cancel <-chan struct{}, d time.Duration) bool {
	if stopped(ctx, cancel) {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cancel:
		return false
	case <-ctx.Done():
		return false
	}
}

func stopped(ctx context.Context, cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
	}
	return ctx.Err() != nil
}

func (s *Scheduler) finishCancelled() error {
	s.finish(StateCancelled)
	s.sink.Update(status.NewActivity(status.ActivityInfo, "run cancelled"))
	return nil
}

func (s *Scheduler) finish(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.sink.Update(status.Event{Type: status.EventProgress, Processing: ptr(false)})
}

func ptr[T any](v T) *T { return &v }
