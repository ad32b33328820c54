package audit

import (
	"context"
	"sync"
)

// DefaultMemoryHistory is the event cap used when none is configured.
const DefaultMemoryHistory = 10000

// MemoryRepo is an in-memory append-only repository for tests and
// database-less runs. It keeps the newest limit events; older ones are evicted.
type MemoryRepo struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemoryRepo keeps at most limit events; limit <= 0 means DefaultMemoryHistory.
func NewMemoryRepo(limit int) *MemoryRepo {
	if limit <= 0 {
		limit = DefaultMemoryHistory
	}
	return &MemoryRepo{limit: limit}
}

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) >= r.limit {
		r.events = r.events[1:]
	}
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
