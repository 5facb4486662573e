package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists job records. Implementations must apply each mutation
// atomically with respect to Get.
type Store interface {
	Create(ctx context.Context, fileName, sourceHash string) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	SetTotalChunks(ctx context.Context, id string, n int) error
	Advance(ctx context.Context, id string, processed int) error
	Complete(ctx context.Context, id string, resultRef string) error
	Fail(ctx context.Context, id string, message string) error
}

// MemoryStore keeps jobs in a mutex-guarded map for the process lifetime.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	now   func() time.Time
	newID func() string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process job registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create registers a new job in processing state with zero progress.
func (s *MemoryStore) Create(ctx context.Context, fileName, sourceHash string) (Job, error) {
	j := newJob(s.newID(), fileName, sourceHash, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = &j
	return j, nil
}

// Get returns a copy of the job so callers never observe a write in progress.
func (s *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j.snapshot(), nil
}

// SetTotalChunks records how many chunks the job was split into.
func (s *MemoryStore) SetTotalChunks(ctx context.Context, id string, n int) error {
	return s.update(id, func(j *Job) error { return j.setTotalChunks(n) })
}

// Advance records processed chunks and recomputes progress.
func (s *MemoryStore) Advance(ctx context.Context, id string, processed int) error {
	return s.update(id, func(j *Job) error { return j.advance(processed) })
}

// Complete marks the job completed and stores the result reference.
func (s *MemoryStore) Complete(ctx context.Context, id string, resultRef string) error {
	now := s.now()
	return s.update(id, func(j *Job) error { return j.complete(resultRef, now) })
}

// Fail marks the job failed with the captured error message.
func (s *MemoryStore) Fail(ctx context.Context, id string, message string) error {
	now := s.now()
	return s.update(id, func(j *Job) error { return j.fail(message, now) })
}

// update applies fn to a scratch copy and commits it only on success.
func (s *MemoryStore) update(id string, fn func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	next := j.snapshot()
	if err := fn(&next); err != nil {
		return err
	}
	*j = next
	return nil
}

// snapshot deep-copies pointer fields.
func (j Job) snapshot() Job {
	if j.TotalChunks != nil {
		n := *j.TotalChunks
		j.TotalChunks = &n
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}
