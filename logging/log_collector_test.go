package logging

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(level, msg string) LogEntry {
	return LogEntry{
		Time:       time.Now(),
		Level:      level,
		Message:    msg,
		Attributes: map[string]any{"job": "lint"},
	}
}

func TestLogCollector_AddLog(t *testing.T) {
	collector := NewLogCollector()
	e := entry("INFO", "alert dispatched")

	collector.AddLog("evaluate", e)

	logs := collector.GetLogs("evaluate")
	require.Len(t, logs, 1)
	assert.Equal(t, e.Message, logs[0].Message)
	assert.Equal(t, "lint", logs[0].Attributes["job"])
}

func TestLogCollector_GetLogs_Unknown(t *testing.T) {
	assert.Nil(t, NewLogCollector().GetLogs("ingest"))
}

func TestLogCollector_GetLogs_ReturnsCopy(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("evaluate", entry("INFO", "first"))

	logs := collector.GetLogs("evaluate")
	logs[0].Message = "changed"

	assert.Equal(t, "first", collector.GetLogs("evaluate")[0].Message)
}

func TestLogCollector_GetAllLogs(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("ingest", entry("INFO", "runs fetched"))
	collector.AddLog("evaluate", entry("WARN", "malformed record"))
	collector.AddLog("evaluate", entry("INFO", "cycle finished"))

	all := collector.GetAllLogs()
	require.Len(t, all, 2)
	assert.Len(t, all["ingest"], 1)
	assert.Len(t, all["evaluate"], 2)

	all["ingest"] = nil
	assert.Len(t, collector.GetLogs("ingest"), 1, "map is a copy")
}

func TestLogCollector_Count(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("evaluate", entry("WARN", "a"))
	collector.AddLog("evaluate", entry("WARN", "b"))
	collector.AddLog("evaluate", entry("INFO", "c"))

	assert.Equal(t, 2, collector.Count("evaluate", "WARN"))
	assert.Equal(t, 1, collector.Count("evaluate", "INFO"))
	assert.Zero(t, collector.Count("ingest", "WARN"))
}

func TestLogCollector_Clear(t *testing.T) {
	collector := NewLogCollector()
	collector.AddLog("evaluate", entry("INFO", "a"))

	collector.Clear()

	assert.Empty(t, collector.GetAllLogs())
	assert.Nil(t, collector.GetLogs("evaluate"))
}

func TestLogCollector_Concurrent(t *testing.T) {
	collector := NewLogCollector()
	const stages = 10
	const perStage = 50

	var wg sync.WaitGroup
	wg.Add(stages * 2)
	for i := range stages {
		stage := fmt.Sprintf("stage-%d", i)
		go func() {
			defer wg.Done()
			for j := range perStage {
				collector.AddLog(stage, entry("INFO", fmt.Sprint(j)))
			}
		}()
		go func() {
			defer wg.Done()
			for range perStage {
				_ = collector.GetAllLogs()
			}
		}()
	}
	wg.Wait()

	all := collector.GetAllLogs()
	require.Len(t, all, stages)
	for stage, logs := range all {
		assert.Len(t, logs, perStage, stage)
	}
}
