package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
)

// runRecord is the on-disk form of a run.
type runRecord struct {
	RunSummary
	StageExecutions []StageExecution `json:"stage_executions"`

	path string
}

// DiskStore persists run history to disk as JSON files.
type DiskStore struct {
	dir       string
	logger    *slog.Logger
	maxCount  int
	summaries []RunSummary                // protected by mu
	logs      map[string][]StageExecution // protected by mu
	files     map[string]string           // run id -> file path, protected by mu
	mu        sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	s := &DiskStore{
		dir:       dir,
		logger:    logger,
		maxCount:  maxCount,
		summaries: make([]RunSummary, 0),
		logs:      make(map[string][]StageExecution),
		files:     make(map[string]string),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := s.Reload(); err != nil {
		logger.Warn("failed to load existing runs", "error", err)
	}

	return s, nil
}

// History returns all runs as summaries.
func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.summaries)
}

// Logs returns the stage executions for a specific run.
func (s *DiskStore) Logs(id string) []StageExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	if logs, ok := s.logs[id]; ok {
		return slices.Clone(logs)
	}
	return nil
}

// Save persists a run to disk and updates the in-memory representation.
// Files of runs that fall out of the history are removed.
func (s *DiskStore) Save(summary RunSummary, executions []StageExecution) error {
	if summary.StartedAt == nil {
		return errors.New("cannot save run without start time")
	}
	if summary.ID == "" {
		return errors.New("cannot save run without id")
	}

	data, err := json.MarshalIndent(runRecord{RunSummary: summary, StageExecutions: executions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	// 2006-01-02T15-04-05_<id>.json sorts by start time
	filename := summary.StartedAt.UTC().Format("2006-01-02T15-04-05") + "_" + summary.ID + ".json"
	path := filepath.Join(s.dir, filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.summaries = append([]RunSummary{summary}, s.summaries...)
	s.logs[summary.ID] = executions
	s.files[summary.ID] = path

	for len(s.summaries) > s.maxCount {
		oldest := s.summaries[len(s.summaries)-1]
		s.summaries = s.summaries[:len(s.summaries)-1]
		delete(s.logs, oldest.ID)
		if old, ok := s.files[oldest.ID]; ok {
			if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("failed to remove old run file", "file", old, "error", err)
			}
			delete(s.files, oldest.ID)
		}
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-loads all runs from disk.
func (s *DiskStore) Reload() error {
	records, err := s.load()
	if err != nil {
		return err
	}

	summaries := make([]RunSummary, len(records))
	logs := make(map[string][]StageExecution, len(records))
	files := make(map[string]string, len(records))
	for i, run := range records {
		summaries[i] = run.RunSummary
		logs[run.ID] = run.StageExecutions
		files[run.ID] = run.path
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = summaries
	s.logs = logs
	s.files = files

	s.logger.Info("loaded run history from disk", "count", len(summaries))
	return nil
}

// load reads the most recent maxCount runs from disk.
func (s *DiskStore) load() ([]runRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var records []runRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var run runRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" || run.StartedAt == nil {
			s.logger.Warn("skipping incomplete run file", "file", path)
			continue
		}

		run.path = path
		records = append(records, run)
	}

	// Sort by start time descending (most recent first)
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(*records[j].StartedAt)
	})

	if len(records) > s.maxCount {
		records = records[:s.maxCount]
	}
	return records, nil
}
