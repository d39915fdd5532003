// Package file persists the processed set as a sorted JSON array on disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/fsutil"
)

// Config captures the parameters for the file-backed checkpoint store.
type Config struct {
	// Path is the JSON file holding the processed keys.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store implements crawler.CheckpointStore on a single JSON file.
type Store struct {
	path   string
	set    *crawler.ProcessedSet
	logger *zap.Logger
}

// New creates a file-backed store. Nothing is read until Load.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   cfg.Path,
		set:    crawler.NewProcessedSet(),
		logger: logger,
	}, nil
}

// Load reads the processed keys. A missing file means a fresh run.
func (s *Store) Load(ctx context.Context) (*crawler.ProcessedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	var keys []string
	found, err := fsutil.ReadJSON(s.path, &keys)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		s.logger.Info("no checkpoint found, starting fresh", zap.String("path", s.path))
	}
	s.set = crawler.NewProcessedSet(keys...)
	s.logger.Info("checkpoint loaded", zap.String("path", s.path), zap.Int("keys", s.set.Len()))
	return s.set.Clone(), nil
}

// Contains reports whether key has been committed.
func (s *Store) Contains(key crawler.ItemKey) bool {
	return s.set.Contains(key)
}

// Commit rewrites the whole sorted key list with key added, then marks key
// processed. A failed write leaves the in-memory set untouched.
func (s *Store) Commit(ctx context.Context, key crawler.ItemKey) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if s.set.Contains(key) {
		return nil
	}
	payload, err := json.MarshalIndent(s.set.With(key), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	s.set.Add(key)
	return nil
}

// Keys returns the committed keys sorted.
func (s *Store) Keys() []string {
	return s.set.Keys()
}

// Len returns the number of committed keys.
func (s *Store) Len() int {
	return s.set.Len()
}
