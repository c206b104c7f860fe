package repair

import (
	"context"
	"sync"
)

// AppliedLedger makes ApplyOption idempotent per (trip, blocker, option).
type AppliedLedger interface {
	Lookup(ctx context.Context, key Key) (AppliedRecord, bool, error)
	// Record stores rec unless the key exists. It reports whether rec was stored.
	Record(ctx context.Context, rec AppliedRecord) (bool, error)
}

// MemoryLedger is an in-process AppliedLedger.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[Key]AppliedRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[Key]AppliedRecord)}
}

func (l *MemoryLedger) Lookup(_ context.Context, key Key) (AppliedRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[key]
	return rec, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, rec AppliedRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.Key()]; exists {
		return false, nil
	}
	l.records[rec.Key()] = rec
	return true, nil
}
