// Package alert decides which failing runs produce regression alerts and
// persists the per-job notification state that deduplicates them.
package alert

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrStatePersistence is returned when notification state cannot be read or
// written. Losing state causes repeat alerts, so callers treat it as fatal.
var ErrStatePersistence = errors.New("notification state persistence failed")

// State maps a job name to the run id it was last notified for. A job that
// is absent has never been notified.
type State map[string]string

// Clone returns an independent copy of s. The copy of a nil State is empty
// and non-nil.
func (s State) Clone() State {
	out := make(State, len(s))
	maps.Copy(out, s)
	return out
}

// Jobs returns the job names in sorted order.
func (s State) Jobs() []string {
	return slices.Sorted(maps.Keys(s))
}

// StateStore loads and saves the full notification state.
type StateStore interface {
	// Load returns the saved state, or an empty state if none was saved.
	Load(ctx context.Context) (State, error)
	// Save replaces the saved state with s.
	Save(ctx context.Context, s State) error
}

// MemoryStore keeps state in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

// NewMemoryStore creates a MemoryStore seeded with a copy of initial.
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial.Clone()}
}

// Load implements StateStore.
func (m *MemoryStore) Load(context.Context) (State, error) {
	return m.Snapshot(), nil
}

// Save implements StateStore.
func (m *MemoryStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.Clone()
	return nil
}

// Snapshot returns a copy of the current state.
func (m *MemoryStore) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
