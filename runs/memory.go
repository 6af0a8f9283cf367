package runs

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps run records in memory only (no persistence).
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Upsert stores records, updating mutable fields of existing run ids.
func (s *MemoryStore) Upsert(_ context.Context, records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		r = r.Normalize()
		if r.RunID == "" {
			return fmt.Errorf("%w: missing run_id", ErrMalformedRecord)
		}
		if existing, ok := s.records[r.RunID]; ok {
			existing.Status = r.Status
			existing.Conclusion = r.Conclusion
			existing.UpdatedAt = r.UpdatedAt
			s.records[r.RunID] = existing
			continue
		}
		s.records[r.RunID] = r
	}
	return nil
}

// Recent returns up to limit records, most recently created first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	return s.filter(limit, func(Record) bool { return true }), nil
}

// JobHistory returns up to limit records of job, most recent first.
func (s *MemoryStore) JobHistory(_ context.Context, job string, limit int) ([]Record, error) {
	return s.filter(limit, func(r Record) bool { return r.JobName == job }), nil
}

// Failures returns up to limit completed failing records, most recent first.
func (s *MemoryStore) Failures(_ context.Context, limit int) ([]Record, error) {
	return s.filter(limit, func(r Record) bool {
		return r.Status == StatusCompleted && r.IsFailure()
	}), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) filter(limit int, keep func(Record) bool) []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.Unlock()

	SortRecent(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
