package turnlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query
// (SQLITE_MAX_VARIABLE_NUMBER). With 15 columns per record we chunk
// batches to stay under the limit.
const (
	maxSQLiteParams     = 999
	columnsPerRecord    = 15
	maxRecordsPerInsert = maxSQLiteParams / columnsPerRecord // 66 records
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates a new SQLite turn log store.
// It creates the turn_logs table if it doesn't exist and starts a
// background cleanup goroutine if retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Commonly-filtered fields live in columns; the rest in JSON.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turn_logs (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			session_id TEXT,
			request_id TEXT,
			detector TEXT,
			provider TEXT,
			model TEXT,
			status TEXT,
			failure_reason TEXT,
			retrieval_type TEXT,
			placeholder_count INTEGER DEFAULT 0,
			streamed INTEGER DEFAULT 0,
			detection_ms REAL DEFAULT 0,
			total_ms REAL DEFAULT 0,
			entity_counts JSON
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn_logs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turn_logs(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_turns_session ON turn_logs(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_turns_detector ON turn_logs(detector)",
		"CREATE INDEX IF NOT EXISTS idx_turns_status ON turn_logs(status)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, store.cleanup)
	}

	return store, nil
}

// WriteBatch writes multiple records to SQLite using batch insert.
// Records are chunked to stay within SQLite's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	for i := 0; i < len(records); i += maxRecordsPerInsert {
		end := i + maxRecordsPerInsert
		if end > len(records) {
			end = len(records)
		}
		chunk := records[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerRecord)

		for j, r := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

			streamedInt := 0
			if r.Streamed {
				streamedInt = 1
			}

			var countsValue interface{}
			if len(r.EntityCounts) > 0 {
				if b, err := json.Marshal(r.EntityCounts); err == nil {
					countsValue = string(b)
				} else {
					slog.Warn("failed to marshal entity counts", "record_id", r.ID, "error", err)
				}
			}

			values = append(values,
				r.ID,
				r.Timestamp.UTC().Format(time.RFC3339Nano),
				r.SessionID,
				r.RequestID,
				r.Detector,
				r.Provider,
				r.Model,
				r.Status,
				r.FailureReason,
				r.RetrievalType,
				r.PlaceholderCount,
				streamedInt,
				r.DetectionMS,
				r.TotalMS,
				countsValue,
			)
		}

		query := `INSERT OR IGNORE INTO turn_logs (id, timestamp, session_id, request_id, detector, provider,
			model, status, failure_reason, retrieval_type, placeholder_count, streamed, detection_ms, total_ms, entity_counts) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert turn log batch %d: %w", i/maxRecordsPerInsert, err)
		}
	}

	return nil
}

// Flush is a no-op for SQLite as writes are synchronous.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
// Note: We don't close the DB here as it's managed by the storage layer.
// Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	if s.retentionDays > 0 && s.stopCleanup != nil {
		s.closeOnce.Do(func() {
			close(s.stopCleanup)
		})
	}
	return nil
}

// cleanup deletes records older than the retention period.
func (s *SQLiteStore) cleanup() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339)

	result, err := s.db.Exec("DELETE FROM turn_logs WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to cleanup old turn logs", "error", err)
		return
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		slog.Info("cleaned up old turn logs", "deleted", rowsAffected)
	}
}
