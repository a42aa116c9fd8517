package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task is one queue entry pointing at a signal thread.
type Task struct {
	ThreadID         string            `json:"thread_id"`
	ThreadName       string            `json:"thread_name"`
	ScheduledContext *ScheduledContext `json:"scheduled_context,omitempty"`

	// raw is the exact payload popped from redis, kept for the LREM that
	// removes this entry from the processing list.
	raw string
}

// ScheduledContext carries the state saved when a Delay decision re-queued
// this thread.
type ScheduledContext struct {
	ThreadName    string             `json:"thread_name"`
	RetryCount    int                `json:"retry_count"`
	DelayReason   string             `json:"delay_reason"`
	DelayQuestion string             `json:"delay_question"`
	KeyLevels     map[string]float64 `json:"key_levels,omitempty"`
	ReanalyzeAt   string             `json:"reanalyze_at"`
}

// Raw returns the original queue payload.
func (t *Task) Raw() string { return t.raw }

// RetryCount returns the monotonic reanalysis count, zero for fresh tasks.
func (t *Task) RetryCount() int {
	if t.ScheduledContext == nil {
		return 0
	}
	return t.ScheduledContext.RetryCount
}

// parseTask decodes a queue payload, requiring a non-empty thread_id.
func parseTask(raw string) (*Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("queue: decode task: %w", err)
	}
	task.ThreadID = strings.TrimSpace(task.ThreadID)
	if task.ThreadID == "" {
		return nil, fmt.Errorf("queue: task missing thread_id")
	}
	task.raw = raw
	return &task, nil
}

// extractThreadID best-effort reads the thread_id of a payload without full
// validation; used during reclaim.
func extractThreadID(raw string) string {
	var probe struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.ThreadID)
}
