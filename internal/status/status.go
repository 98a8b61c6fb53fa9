package status

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxActivities bounds the activity log; the oldest entry is evicted first.
const MaxActivities = 10

// ActivityType classifies one log entry.
type ActivityType string

const (
	ActivityInfo    ActivityType = "info"
	ActivitySuccess ActivityType = "success"
	ActivityError   ActivityType = "error"
)

// Activity is a single timestamped scheduler event.
type Activity struct {
	ID      string       `json:"id"`
	Type    ActivityType `json:"type"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// Snapshot is an immutable view of the pipeline's progress. Readers always
// get a copy; a Store mutation can never tear a snapshot already handed out.
type Snapshot struct {
	IsProcessing     bool       `json:"is_processing"`
	CurrentPageLabel string     `json:"current_page_label,omitempty"`
	Found            int        `json:"found"`
	Scheduled        int        `json:"scheduled"`
	Completed        int        `json:"completed"`
	Failed           int        `json:"failed"`
	Activities       []Activity `json:"activities"`
}

// EventType says which half of an Event is populated.
type EventType string

const (
	EventProgress EventType = "progress"
	EventActivity EventType = "activity"
	EventReset    EventType = "reset"
)

// Event is one merge applied to the status. Progress events carry counter
// deltas and optional flag/label updates; activity events append one entry;
// a reset event clears the whole snapshot (emitted on re-schedule).
type Event struct {
	Type EventType `json:"type"`

	Processing     *bool   `json:"processing,omitempty"`
	PageLabel      *string `json:"page_label,omitempty"`
	FoundDelta     int     `json:"found_delta,omitempty"`
	ScheduledDelta int     `json:"scheduled_delta,omitempty"`
	CompletedDelta int     `json:"completed_delta,omitempty"`
	FailedDelta    int     `json:"failed_delta,omitempty"`

	Activity *Activity `json:"activity,omitempty"`
}

// NewActivity builds an activity event with a fresh id and timestamp.
func NewActivity(kind ActivityType, message string) Event {
	return Event{
		Type: EventActivity,
		Activity: &Activity{
			ID:      uuid.New().String(),
			Type:    kind,
			Message: message,
			At:      time.Now(),
		},
	}
}

// Sink receives status events. Store is the canonical implementation;
// KafkaSink and MultiSink fan events elsewhere.
type Sink interface {
	Update(Event)
}

// Store is the process-wide append/merge status resource. Reads may race
// with scheduler mutations and always see a complete snapshot.
type Store struct {
	mu     sync.RWMutex
	snap   Snapshot
	subs   map[int]func(Snapshot)
	nextID int
}

// NewStore creates an empty status store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// Update merges one event into the status and notifies observers with the
// resulting snapshot. Observer panics are logged, never propagated.
func (s *Store) Update(e Event) {
	s.mu.Lock()
	switch e.Type {
	case EventProgress:
		if e.Processing != nil {
			s.snap.IsProcessing = *e.Processing
		}
		if e.PageLabel != nil {
			s.snap.CurrentPageLabel = *e.PageLabel
		}
		s.snap.Found += e.FoundDelta
		s.snap.Scheduled += e.ScheduledDelta
		s.snap.Completed += e.CompletedDelta
		s.snap.Failed += e.FailedDelta
	case EventActivity:
		if e.Activity != nil {
			s.snap.Activities = append(s.snap.Activities, *e.Activity)
			if len(s.snap.Activities) > MaxActivities {
				s.snap.Activities = append([]Activity(nil), s.snap.Activities[len(s.snap.Activities)-MaxActivities:]...)
			}
		}
	case EventReset:
		s.snap = Snapshot{}
	}
	snap := s.copySnapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		notify(fn, snap)
	}
}

func notify(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[status] observer panic: %v", r)
		}
	}()
	fn(snap)
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copySnapshotLocked()
}

func (s *Store) copySnapshotLocked() Snapshot {
	snap := s.snap
	snap.Activities = append([]Activity(nil), s.snap.Activities...)
	return snap
}

// Reset clears counters and activities; the scheduler emits the equivalent
// reset event on every re-schedule. Observers are notified like any other
// update.
func (s *Store) Reset() {
	s.Update(Event{Type: EventReset})
}

// OnChange registers an observer called synchronously after every update.
// The returned function unsubscribes it.
func (s *Store) OnChange(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
