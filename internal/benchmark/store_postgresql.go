package benchmark

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore stores runs in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the benchmark_runs table and indexes if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS benchmark_runs (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			detector TEXT NOT NULL,
			dataset TEXT NOT NULL,
			data JSONB NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_benchmark_runs_created_at ON benchmark_runs(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs created_at index: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_benchmark_runs_detector ON benchmark_runs(detector)"); err != nil {
		return nil, fmt.Errorf("failed to create benchmark_runs detector index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Save inserts a new run.
func (s *PostgreSQLStore) Save(ctx context.Context, run *Run) error {
	payload, err := serializeRun(run)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO benchmark_runs (id, created_at, detector, dataset, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, run.ID, run.CreatedAt, run.Detector, run.Dataset, payload)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get returns a run by id.
func (s *PostgreSQLStore) Get(ctx context.Context, id string) (*Run, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM benchmark_runs WHERE id = $1", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	run, err := deserializeRun(payload)
	if err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by created_at desc, id desc.
func (s *PostgreSQLStore) List(ctx context.Context, limit int, after string) ([]*Run, error) {
	limit = normalizeLimit(limit)

	var rows pgx.Rows
	var err error
	if after == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT data
			FROM benchmark_runs
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	} else {
		var cursorCreatedAt int64
		err = s.pool.QueryRow(ctx, "SELECT created_at FROM benchmark_runs WHERE id = $1", after).Scan(&cursorCreatedAt)
		switch {
		case err == nil:
			rows, err = s.pool.Query(ctx, `
				SELECT data
				FROM benchmark_runs
				WHERE (created_at < $1) OR (created_at = $1 AND id < $2)
				ORDER BY created_at DESC, id DESC
				LIMIT $3
			`, cursorCreatedAt, after, limit)
		case errors.Is(err, pgx.ErrNoRows):
			// Cursor may have been deleted between requests; restart pagination from newest items.
			rows, err = s.pool.Query(ctx, `
				SELECT data
				FROM benchmark_runs
				ORDER BY created_at DESC, id DESC
				LIMIT $1
			`, limit)
		default:
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	items := make([]*Run, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run, err := deserializeRun(payload)
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

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
