package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single captured log record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// LogCollector stores captured logs keyed by pipeline stage. It is safe for
// concurrent use.
type LogCollector struct {
	mu   sync.RWMutex
	logs map[string][]LogEntry // stage -> entries
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[string][]LogEntry),
	}
}

// AddLog appends an entry for the stage.
func (c *LogCollector) AddLog(stage string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs[stage] = append(c.logs[stage], entry)
}

// GetLogs returns a copy of the entries for a stage, or nil if it never logged.
func (c *LogCollector) GetLogs(stage string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[stage]
	if !exists {
		return nil
	}

	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// GetAllLogs returns a copy of every stage's entries.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for stage, logs := range c.logs {
		logsCopy := make([]LogEntry, len(logs))
		copy(logsCopy, logs)
		result[stage] = logsCopy
	}
	return result
}

// Count returns the number of entries captured for a stage at exactly level,
// which uses slog's names such as "WARN".
func (c *LogCollector) Count(stage, level string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.logs[stage] {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Clear removes all stored logs.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
}
