// Package postgres keeps crawl run history in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "crawl_runs"

// Config controls the Postgres connection used for run history.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store implements runs.Repository on Postgres.
type Store struct {
	pool  pool
	table string
}

var _ runs.Repository = (*Store)(nil)

// New connects to Postgres and ensures the run table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("runs.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool.
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// EnsureSchema creates the run table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	extracted INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	pages INTEGER NOT NULL DEFAULT 0,
	note TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts a running row.
func (s *Store) StartRun(ctx context.Context, id string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, startedAt, runs.StatusRunning); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AddCounts increments the run's counters.
func (s *Store) AddCounts(ctx context.Context, id string, d runs.Delta) error {
	if d.IsZero() {
		return nil
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	extracted = extracted + $2,
	skipped = skipped + $3,
	failed = failed + $4,
	pages = pages + $5
WHERE run_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, d.Extracted, d.Skipped, d.Failed, d.Pages); err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return nil
}

// FinishRun sets the final status.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, status runs.Status, note string) error {
	query := fmt.Sprintf(`
UPDATE %s SET finished_at = $2, status = $3, note = $4
WHERE run_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, finishedAt, status, note); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns returns runs ordered by start time, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]runs.Run, error) {
	query := fmt.Sprintf(`
SELECT run_id, started_at, finished_at, status, extracted, skipped, failed, pages, note
FROM %s
ORDER BY started_at DESC
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (runs.Run, error) {
		var r runs.Run
		err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.Extracted, &r.Skipped, &r.Failed, &r.Pages, &r.Note)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect runs: %w", err)
	}
	return out, nil
}
