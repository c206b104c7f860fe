package evidence

import (
	"context"
	"sync"
)

// Store keeps terminal task snapshots so results outlive Dispose.
type Store interface {
	Save(ctx context.Context, t Task) error
	Get(ctx context.Context, taskID string) (Task, error)
	// LatestCompleted returns the most recently finished COMPLETED task for a trip.
	LatestCompleted(ctx context.Context, tripID string) (Task, bool, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task)}
}

func (s *MemoryStore) Save(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.TaskID] = t.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.clone(), nil
}

func (s *MemoryStore) LatestCompleted(_ context.Context, tripID string) (Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  Task
		found bool
	)
	for _, t := range s.tasks {
		if t.TripID != tripID || t.Status != StatusCompleted {
			continue
		}
		if !found || t.UpdatedAt.After(best.UpdatedAt) {
			best, found = t, true
		}
	}
	return best.clone(), found, nil
}
