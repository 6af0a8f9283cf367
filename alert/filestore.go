package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists state as a JSON object on disk.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty state.
func (f *FileStore) Load(_ context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Debug("no notification state file, starting empty", "path", f.path)
		return State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStatePersistence, f.path, err)
	}

	state := State{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrStatePersistence, f.path, err)
	}
	return state, nil
}

// Save writes s to a temporary file next to the state file and renames it
// into place, so readers never observe a partial write.
func (f *FileStore) Save(_ context.Context, s State) error {
	if s == nil {
		s = State{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal state: %w", ErrStatePersistence, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", ErrStatePersistence, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStatePersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrStatePersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrStatePersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrStatePersistence, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: rename state file: %w", ErrStatePersistence, err)
	}

	f.logger.Debug("saved notification state", "path", f.path, "jobs", len(s))
	return nil
}
