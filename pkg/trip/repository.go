package trip

import (
	"context"
	"errors"
	"sync"
)

// ErrTripNotFound is returned when no trip exists for an id.
var ErrTripNotFound = errors.New("trip not found")

// Repository loads and persists trip contexts.
type Repository interface {
	GetTripContext(ctx context.Context, tripID string) (Context, error)
	SaveTripContext(ctx context.Context, c Context) error
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	trips map[string]Context
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{trips: make(map[string]Context)}
}

func (r *MemoryRepository) GetTripContext(_ context.Context, tripID string) (Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.trips[tripID]
	if !ok {
		return Context{}, ErrTripNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) SaveTripContext(_ context.Context, c Context) error {
	if c.TripID == "" {
		return &ValidationError{Fields: []string{"Context.TripID:required"}, Detail: "cannot save trip"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[c.TripID] = c.Clone()
	return nil
}
