package jobs

import (
	"context"
	"sync"
	"time"
)

// Event is one sequenced job update consumed by progress subscribers.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Job       Job       `json:"job"`
}

// EventBus stores recent job updates and wakes waiting readers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	changed   chan struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		changed:   make(chan struct{}),
	}
}

// Publish appends a snapshot of job and assigns sequence and timestamp.
func (b *EventBus) Publish(job Job) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event := Event{
		Seq:       b.nextSeq,
		Timestamp: time.Now().UTC(),
		Job:       job.snapshot(),
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return event
}

// Since returns events for jobID with sequence strictly greater than seq.
// An empty jobID matches every job.
func (b *EventBus) Since(jobID string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq && (jobID == "" || event.Job.ID == jobID) {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence number of the most recent event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Changed returns a channel closed on the next Publish.
func (b *EventBus) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// publishingStore publishes the fresh job snapshot after every mutation.
type publishingStore struct {
	Store
	bus *EventBus
}

// WithEvents wraps store so each successful mutation is published on bus.
func WithEvents(store Store, bus *EventBus) Store {
	return publishingStore{Store: store, bus: bus}
}

func (s publishingStore) Create(ctx context.Context, fileName, sourceHash string) (Job, error) {
	j, err := s.Store.Create(ctx, fileName, sourceHash)
	if err == nil {
		s.bus.Publish(j)
	}
	return j, err
}

func (s publishingStore) SetTotalChunks(ctx context.Context, id string, n int) error {
	return s.publish(ctx, id, s.Store.SetTotalChunks(ctx, id, n))
}

func (s publishingStore) Advance(ctx context.Context, id string, processed int) error {
	return s.publish(ctx, id, s.Store.Advance(ctx, id, processed))
}

func (s publishingStore) Complete(ctx context.Context, id string, resultRef string) error {
	return s.publish(ctx, id, s.Store.Complete(ctx, id, resultRef))
}

func (s publishingStore) Fail(ctx context.Context, id string, message string) error {
	return s.publish(ctx, id, s.Store.Fail(ctx, id, message))
}

func (s publishingStore) publish(ctx context.Context, id string, err error) error {
	if err != nil {
		return err
	}
	if j, getErr := s.Store.Get(ctx, id); getErr == nil {
		s.bus.Publish(j)
	}
	return nil
}
