// Package sqlite persists the processed set in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// Config controls where the database lives.
type Config struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`
	// EnableWAL turns on write-ahead logging.
	EnableWAL bool `mapstructure:"enable_wal" yaml:"enable_wal"`
}

// Store implements crawler.CheckpointStore on SQLite. Each commit is a single
// INSERT, which SQLite applies atomically.
type Store struct {
	db     *sql.DB
	set    *crawler.ProcessedSet
	clock  crawler.Clock
	logger *zap.Logger
}

// Open opens or creates the database and its schema.
func Open(ctx context.Context, cfg Config, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if cfg.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{
		db:     db,
		set:    crawler.NewProcessedSet(),
		clock:  clock,
		logger: logger,
	}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS processed_items (
		item_key TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		committed_at DATETIME NOT NULL
	);`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads every committed key.
func (s *Store) Load(ctx context.Context) (*crawler.ProcessedSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT item_key FROM processed_items")
	if err != nil {
		return nil, fmt.Errorf("query processed items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan processed item: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed items: %w", err)
	}
	s.set = crawler.NewProcessedSet(keys...)
	s.logger.Info("checkpoint loaded", zap.String("backend", "sqlite"), zap.Int("keys", s.set.Len()))
	return s.set.Clone(), nil
}

// Contains reports whether key has been committed.
func (s *Store) Contains(key crawler.ItemKey) bool {
	return s.set.Contains(key)
}

// Commit inserts key and marks it processed once the insert succeeded.
func (s *Store) Commit(ctx context.Context, key crawler.ItemKey) error {
	const query = `INSERT OR IGNORE INTO processed_items (item_key, source, category, name, committed_at)
	VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key.String(), key.Source, key.Category, key.Name, s.now()); err != nil {
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
