// Package turnlog persists per-turn audit records: which detector ran,
// what was substituted, how the model call went, and how long each
// stage took. Records never contain original PII values, only counts
// and placeholder metadata.
package turnlog

import (
	"context"
	"time"
)

// Store defines the interface for turn record storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch writes multiple records to storage.
	// This is called by the Logger when flushing buffered records.
	WriteBatch(ctx context.Context, records []*Record) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// Record is one completed (or failed) pipeline turn.
type Record struct {
	// ID is a unique identifier for this record (UUID)
	ID string `json:"id"`

	// Timestamp is when the turn started
	Timestamp time.Time `json:"timestamp"`

	SessionID string `json:"session_id"`
	RequestID string `json:"request_id,omitempty"`

	Detector string `json:"detector"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`

	// Status is the terminal turn state: "delivered" or "failed".
	Status string `json:"status"`

	// FailureReason carries the error taxonomy type on failed turns.
	FailureReason string `json:"failure_reason,omitempty"`

	// EntityCounts is the per-type count of spans substituted this turn.
	EntityCounts map[string]int `json:"entity_counts,omitempty"`

	// PlaceholderCount is the session mapping size after this turn.
	PlaceholderCount int `json:"placeholder_count"`

	RetrievalType string `json:"retrieval_type,omitempty"`
	EmployeeCount int    `json:"employee_count,omitempty"`

	Streamed bool `json:"streamed,omitempty"`

	DetectionMS float64 `json:"detection_ms"`
	TotalMS     float64 `json:"total_ms"`
}

// Config holds turn logging configuration
type Config struct {
	// Enabled controls whether turn logging is active
	Enabled bool

	// BufferSize is the number of records to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered records
	FlushInterval time.Duration

	// RetentionDays is how long to keep records (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
