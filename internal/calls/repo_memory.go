package calls

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryHistory is the record cap used when none is configured.
const DefaultMemoryHistory = 10000

// MemoryRepo keeps the most recent call records in process. Used when no
// database is configured and in tests. Once limit records are held, saving
// evicts the oldest; it is not a substitute for Postgres in production.
type MemoryRepo struct {
	mu      sync.Mutex
	limit   int
	records []Record
	ids     map[string]struct{}
}

// NewMemoryRepo keeps at most limit records; limit <= 0 means DefaultMemoryHistory.
func NewMemoryRepo(limit int) *MemoryRepo {
	if limit <= 0 {
		limit = DefaultMemoryHistory
	}
	return &MemoryRepo{limit: limit, ids: make(map[string]struct{})}
}

// Save stores rec. Saving the same call id twice is a no-op, as in PostgresRepo.
func (r *MemoryRepo) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[rec.CallID]; ok {
		return nil
	}
	if len(r.records) >= r.limit {
		delete(r.ids, r.records[0].CallID)
		r.records = r.records[1:]
	}
	r.records = append(r.records, rec)
	r.ids[rec.CallID] = struct{}{}
	return nil
}

// List returns records whose EndedAt is in [from, to). A zero bound is open.
func (r *MemoryRepo) List(_ context.Context, from, to time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if !from.IsZero() && rec.EndedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.EndedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
