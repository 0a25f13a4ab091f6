// internal/api/job/store.go
package job

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/edgelab/internal/core"
)

// Status represents job status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Done reports whether the job reached a terminal state.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job represents an async analysis job.
type Job struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Name        string      `json:"name,omitempty"`
	Status      Status      `json:"status"`
	Progress    int         `json:"progress"`
	Result      any         `json:"result,omitempty"`
	ArchivePath string      `json:"archive_path,omitempty"`
	Error       *core.Error `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Store keeps jobs in memory, bounded by size and by age.
type Store struct {
	jobs    map[string]*Job
	order   []string // Track insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates a new job store. A zero ttl keeps jobs until evicted
// by size.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create creates a new pending job and returns a copy of it.
func (s *Store) Create(jobType, name string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expire(now)

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Evict oldest if at capacity
	for len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	return *job
}

// Get retrieves a job by ID.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok || s.expired(job, s.now()) {
		return nil, core.Errorf(core.ErrJobNotFound, "job %s", id)
	}

	// Return copy to prevent race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.Errorf(core.ErrJobNotFound, "job %s", id)
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// List returns the live jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !s.expired(job, now) {
			result = append(result, *job)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Active returns the number of pending or running jobs.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, job := range s.jobs {
		if !job.Status.Done() {
			n++
		}
	}
	return n
}

// expired reports whether a finished job outlived the ttl. Unfinished
// jobs never expire.
func (s *Store) expired(job *Job, now time.Time) bool {
	return s.ttl > 0 && job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
}

// expire drops expired jobs. Callers hold the write lock.
func (s *Store) expire(now time.Time) {
	kept := s.order[:0]
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok && s.expired(job, now) {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
