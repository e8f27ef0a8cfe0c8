// internal/store/store.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the ledger can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS test_runs (
            run_id      TEXT PRIMARY KEY,
            mode        TEXT NOT NULL,
            test_ids    TEXT[] NOT NULL,
            exit_code   INTEGER NOT NULL,
            test_count  INTEGER NOT NULL,
            failures    INTEGER NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlInsertRun = `
        INSERT INTO test_runs (run_id, mode, test_ids, exit_code, test_count, failures, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (run_id) DO UPDATE SET
            exit_code = EXCLUDED.exit_code,
            failures = EXCLUDED.failures,
            finished_at = EXCLUDED.finished_at;
    `
	sqlRecentRuns = `
        SELECT run_id, mode, test_ids, exit_code, test_count, failures, started_at, finished_at
        FROM test_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

// Store is the PostgreSQL run ledger.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunLedger = (*Store)(nil)

// New verifies the connection and ensures the ledger table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateRuns); err != nil {
		return nil, fmt.Errorf("failed to create test_runs table: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects to url and returns the ledger with a close function.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// RecordRun inserts a batch, updating the outcome if the run id already exists.
func (s *Store) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	ids := run.TestIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.RunID, string(run.Mode), ids,
		run.ExitCode, run.TestCount, run.Failures,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	s.log.Debug("Run recorded.", zap.String("run_id", run.RunID))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunRecord
	for rows.Next() {
		var r schemas.RunRecord
		var mode string
		if err := rows.Scan(&r.RunID, &mode, &r.TestIDs, &r.ExitCode, &r.TestCount, &r.Failures, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Mode = schemas.RunMode(mode)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
