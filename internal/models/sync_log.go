package models

import (
	"fmt"
	"strings"
)

// LogLevel is the severity of a job log line.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// ParseLogLevel accepts any casing. An empty string means "all levels".
func ParseLogLevel(raw string) (LogLevel, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	switch LogLevel(raw) {
	case "":
		return "", nil
	case LogDebug, LogInfo, LogWarning, LogError:
		return LogLevel(raw), nil
	default:
		return "", fmt.Errorf("unknown log level %q", raw)
	}
}

// SyncJobLog is one log line produced by a sync job.
type SyncJobLog struct {
	ID        string         `json:"id"`
	SyncJobID string         `json:"sync_job_id"`
	Timestamp Timestamp      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// SyncJobLogPage is one page of a job's log stream.
type SyncJobLogPage struct {
	Logs  []SyncJobLog `json:"logs"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// Pages returns the number of pages for the page's limit.
func (p SyncJobLogPage) Pages() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// LogQuery selects a page of a job's logs.
type LogQuery struct {
	Page  int
	Limit int
	Level LogLevel
}
