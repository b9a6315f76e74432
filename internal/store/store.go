package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openbraininstitute/obi-linkcheck/internal/linkcheck"
	"github.com/openbraininstitute/obi-linkcheck/internal/reporting"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS link_runs (
    id          UUID PRIMARY KEY,
    environment TEXT NOT NULL,
    base_url    TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    pages       INTEGER NOT NULL,
    total       INTEGER NOT NULL,
    working     INTEGER NOT NULL,
    forbidden   INTEGER NOT NULL,
    broken      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS link_results (
    id          BIGSERIAL PRIMARY KEY,
    run_id      UUID NOT NULL REFERENCES link_runs(id) ON DELETE CASCADE,
    url         TEXT NOT NULL,
    source_page TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    class       TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    context     TEXT NOT NULL DEFAULT '',
    external    BOOLEAN NOT NULL DEFAULT FALSE,
    checked_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS link_results_run_id_idx ON link_results (run_id);
`

const insertRunSQL = `
    INSERT INTO link_runs (id, environment, base_url, started_at, finished_at, pages, total, working, forbidden, broken)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const insertResultSQL = `
    INSERT INTO link_results (run_id, url, source_page, status_code, class, error, context, external, checked_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

const selectResultsSQL = `
    SELECT url, source_page, status_code, class, error, context, external, checked_at
    FROM link_results
    WHERE run_id = $1
    ORDER BY id ASC;
`

// Store keeps run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for databaseURL and returns a ready store. The
// returned func closes the pool.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores the run and all of its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, report *reporting.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.insertRun(ctx, tx, report); err != nil {
		s.rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run persisted", zap.String("run_id", report.RunID), zap.Int("results", len(report.Results)))
	return nil
}

func (s *Store) insertRun(ctx context.Context, tx pgx.Tx, report *reporting.Report) error {
	sum := report.Summary
	_, err := tx.Exec(ctx, insertRunSQL,
		report.RunID, report.Environment, report.BaseURL,
		report.StartedAt.UTC(), report.FinishedAt.UTC(), len(report.Pages),
		sum.Total, sum.Working, sum.Forbidden, sum.Broken,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	for i, r := range report.Results {
		_, err := tx.Exec(ctx, insertResultSQL,
			report.RunID, r.URL, r.SourcePage, r.StatusCode, string(r.Class),
			r.Error, r.Context, r.External, r.CheckedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s (index %d): %w", r.URL, i, err)
		}
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}

// GetResultsByRunID returns the results of a stored run in insertion order.
func (s *Store) GetResultsByRunID(ctx context.Context, runID string) ([]linkcheck.Result, error) {
	rows, err := s.pool.Query(ctx, selectResultsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []linkcheck.Result
	for rows.Next() {
		var r linkcheck.Result
		var class string
		if err := rows.Scan(
			&r.URL, &r.SourcePage, &r.StatusCode, &class,
			&r.Error, &r.Context, &r.External, &r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Class = linkcheck.Class(class)
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
