// Package postgres persists the processed set in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "processed_items"

// Config controls the Postgres connection pool used for checkpoint rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store implements crawler.CheckpointStore on Postgres.
type Store struct {
	pool   pool
	table  string
	set    *crawler.ProcessedSet
	clock  crawler.Clock
	logger *zap.Logger
}

// New connects to Postgres and ensures the checkpoint table exists.
func New(ctx context.Context, cfg Config, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, clock, logger)
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

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   p,
		table:  table,
		set:    crawler.NewProcessedSet(),
		clock:  clock,
		logger: logger,
	}, nil
}

// EnsureSchema creates the checkpoint table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	item_key TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads every committed key.
func (s *Store) Load(ctx context.Context) (*crawler.ProcessedSet, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT item_key FROM %s", s.table))
	if err != nil {
		return nil, fmt.Errorf("query processed items: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect processed items: %w", err)
	}
	s.set = crawler.NewProcessedSet(keys...)
	s.logger.Info("checkpoint loaded", zap.String("backend", "postgres"), zap.Int("keys", s.set.Len()))
	return s.set.Clone(), nil
}

// Contains reports whether key has been committed.
func (s *Store) Contains(key crawler.ItemKey) bool {
	return s.set.Contains(key)
}

// Commit inserts key and marks it processed once the row is durable.
func (s *Store) Commit(ctx context.Context, key crawler.ItemKey) error {
	query := fmt.Sprintf(`
INSERT INTO %s (item_key, source, category, name, committed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (item_key) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, key.String(), key.Source, key.Category, key.Name, s.now()); err != nil {
		return fmt.Errorf("insert processed item: %w", err)
	}
	s.set.Add(key)
	return nil
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// Keys returns the committed keys sorted.
func (s *Store) Keys() []string {
	return s.set.Keys()
}

// Len returns the number of committed keys.
func (s *Store) Len() int {
	return s.set.Len()
}
