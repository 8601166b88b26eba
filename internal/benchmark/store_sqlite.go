package benchmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore stores runs in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the benchmark_runs table and indexes if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS benchmark_runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			detector TEXT NOT NULL,
			dataset TEXT NOT NULL,
			data TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_benchmark_runs_created_at ON benchmark_runs(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs created_at index: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_benchmark_runs_detector ON benchmark_runs(detector)"); err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs detector index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts a new run.
func (s *SQLiteStore) Save(ctx context.Context, run *Run) error {
	payload, err := serializeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO benchmark_runs (id, created_at, detector, dataset, data)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, run.Detector, run.Dataset, string(payload))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get returns a run by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM benchmark_runs WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	run, err := deserializeRun([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by created_at desc, id desc.
func (s *SQLiteStore) List(ctx context.Context, limit int, after string) ([]*Run, error) {
	limit = normalizeLimit(limit)

	var rows *sql.Rows
	var err error
	if after == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT data
			FROM benchmark_runs
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
	} else {
		var cursorCreatedAt int64
		err = s.db.QueryRowContext(ctx, "SELECT created_at FROM benchmark_runs WHERE id = ?", after).Scan(&cursorCreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}

		rows, err = s.db.QueryContext(ctx, `
			SELECT data
			FROM benchmark_runs
			WHERE (created_at < ?) OR (created_at = ? AND id < ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, cursorCreatedAt, cursorCreatedAt, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	items := make([]*Run, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run, err := deserializeRun([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode run row: %w", err)
		}
		items = append(items, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return items, nil
}

// Close is a no-op; DB lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
