// Package usage records per-request accounting: which provider and model
// served each translation or vision call, token consumption, latency and
// outcome. Entries are buffered in memory and batch-written to SQLite.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lingogate/internal/core"
)

// Entry is one completed request attempt.
type Entry struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Provider     core.Provider `json:"provider"`
	Model        string        `json:"model"`
	Task         string        `json:"task"` // "translation" or "vision"
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	Success      bool          `json:"success"`
	ErrorType    string        `json:"error_type,omitempty"`
	LatencyMS    int64         `json:"latency_ms"`
}

// NewEntry creates an entry with a fresh identifier and timestamp.
func NewEntry(provider core.Provider, model, task string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Provider:  provider,
		Model:     model,
		Task:      task,
	}
}

// Store persists usage entries.
type Store interface {
	WriteBatch(ctx context.Context, entries []*Entry) error
	Close() error
}

// Recorder accepts entries for asynchronous persistence.
type Recorder interface {
	Write(entry *Entry)
	Close() error
}

// NoopRecorder discards entries. Used when usage logging is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Write(*Entry) {}
func (NoopRecorder) Close() error { return nil }
