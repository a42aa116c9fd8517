// Package journal appends one audit record per processed task to a per-day
// JSONL file. The journal is an operator convenience, never load-bearing:
// write failures are reported to the caller but must not fail the task.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record captures the terminal outcome of one task.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	ThreadID    string    `json:"thread_id"`
	ThreadName  string    `json:"thread_name,omitempty"`
	RetryCount  int       `json:"retry_count,omitempty"`
	Act         string    `json:"act"` // execute | skip | schedule | fail | dead_letter
	Reasoning   string    `json:"reasoning,omitempty"`
	Category    string    `json:"category,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Simulated   bool      `json:"simulated,omitempty"`
	ModelUsed   string    `json:"model_used,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	PromptBytes int       `json:"prompt_bytes,omitempty"`
}

// Writer appends records to <dir>/decisions_YYYYMMDD.jsonl.
type Writer struct {
	mu    sync.Mutex
	dir   string
	nowFn func() time.Time
}

// NewWriter constructs a journal writer, creating the directory if needed.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// Append writes one record.
func (w *Writer) Append(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("journal: nil record")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}

	name := fmt.Sprintf("decisions_%s.jsonl", rec.Timestamp.UTC().Format("20060102"))
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: append %s: %w", path, err)
	}
	return nil
}
