package runner

import (
	"errors"
	"slices"
	"sync"
)

// StateStore manages persistence of run history.
type StateStore interface {
	// History returns the stored runs, most recent first.
	History() []RunSummary
	// Logs returns the stage executions of one run, or nil if unknown.
	Logs(id string) []StageExecution
	// Save persists a finished run.
	Save(summary RunSummary, executions []StageExecution) error
}

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	maxCount int
	runs     []RunStatus
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory store holding at most maxCount runs.
// A non-positive maxCount uses the default history size.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	return &MemoryStore{
		maxCount: maxCount,
		runs:     make([]RunStatus, 0),
	}
}

// History returns all runs as summaries.
func (s *MemoryStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Logs returns the stage executions for a specific run.
func (s *MemoryStore) Logs(id string) []StageExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return slices.Clone(run.StageExecutions)
		}
	}
	return nil
}

// Save stores a run in memory.
func (s *MemoryStore) Save(summary RunSummary, executions []StageExecution) error {
	if summary.ID == "" {
		return errors.New("cannot save run without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run := RunStatus{
		RunSummary:      summary,
		StageExecutions: executions,
	}

	// Prepend to keep most recent first
	s.runs = append([]RunStatus{run}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
