// Package postgres stores extracted records as JSONB rows.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "crawl_records"

// Config controls the Postgres connection pool used for record rows.
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

// Sink implements crawler.RecordSink and crawler.RecordReader.
type Sink struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the records table exists.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.dsn is required")
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
	sink, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return sink, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{pool: p, table: table}, nil
}

// EnsureSchema creates the records table when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	item_key TEXT NOT NULL,
	source TEXT NOT NULL,
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	payload JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Append inserts one row per record.
func (s *Sink) Append(ctx context.Context, record crawler.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (item_key, source, category, name, payload, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
	key := record.Key()
	if _, err := s.pool.Exec(ctx, query,
		key.String(), key.Source, key.Category, key.Name, payload, record.ScrapedAt,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Records returns every stored record in insertion order.
func (s *Sink) Records(ctx context.Context) ([]crawler.Record, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT payload FROM %s ORDER BY id", s.table))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("collect records: %w", err)
	}
	records := make([]crawler.Record, 0, len(payloads))
	for _, raw := range payloads {
		var record crawler.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
