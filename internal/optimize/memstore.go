package optimize

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory JobStore for tests and store-less runs.
type MemStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemStore creates an empty in-memory job store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]Job)}
}

func (m *MemStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemStore) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

// GetJob returns a snapshot of the job, or false when unknown.
func (m *MemStore) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}
