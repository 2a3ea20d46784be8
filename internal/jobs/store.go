package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job identifier is unknown, either because it
// never existed or because the janitor already evicted it.
var ErrNotFound = errors.New("job not found")

// Store is the job registry shared by the request API, the orchestrator, and
// the janitor. MemoryStore is the in-process implementation.
type Store interface {
	Create(question, corpus string, weakConcepts []string) Job
	Get(id string) (Job, error)
	SetProgress(id string, progress int, message string) error
	Complete(id string, res Result) error
	Fail(id, errMsg string) error
	EvictBefore(cutoff time.Time) int
	Counts() (active, total int)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps jobs in an in-process map. Lookups and mutations of
// different entries may proceed concurrently; each job is only ever mutated
// through store methods, so readers always observe a consistent snapshot.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create registers a new processing job for the given request and returns a
// snapshot of it.
func (s *MemoryStore) Create(question, corpus string, weakConcepts []string) Job {
	now := time.Now().UTC()
	job := Job{
		ID:           uuid.New().String(),
		Question:     question,
		Context:      corpus,
		WeakConcepts: append([]string(nil), weakConcepts...),
		Status:       StatusProcessing,
		Progress:     0,
		Message:      "request received",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	stored := job
	s.jobs[job.ID] = &stored
	s.mu.Unlock()

	return job
}

// Get returns a snapshot of the job. The Result pointer and slices are shared
// with the store but are never mutated after publication.
func (s *MemoryStore) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// SetProgress updates progress and stage message on a live job. Progress is
// clamped to [0, 100]; updates to terminal jobs are ignored.
func (s *MemoryStore) SetProgress(id string, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	job.Progress = progress
	if message != "" {
		job.Message = message
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete moves the job to completed with progress 100 and stores the result.
// Completing an already-terminal job is a no-op.
func (s *MemoryStore) Complete(id string, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	job.Status = StatusCompleted
	job.Progress = 100
	job.Message = "completed"
	job.Result = &res
	job.Error = ""
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the job to failed, keeping the error message visible to pollers.
// Failing an already-terminal job is a no-op.
func (s *MemoryStore) Fail(id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	job.Status = StatusFailed
	job.Message = "failed"
	job.Error = errMsg
	job.Result = nil
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// EvictBefore removes terminal jobs whose last update is older than cutoff and
// returns how many were removed. In-flight jobs are never evicted.
func (s *MemoryStore) EvictBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// Counts reports how many jobs are still processing and how many are tracked
// in total.
func (s *MemoryStore) Counts() (active, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			active++
		}
	}
	return active, len(s.jobs)
}
