// Package memory provides an in-memory checkpoint store for tests and dry runs.
package memory

import (
	"context"
	"fmt"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// Store keeps the processed set in process memory only.
type Store struct {
	set *crawler.ProcessedSet
}

// New returns a store seeded with keys.
func New(keys ...crawler.ItemKey) *Store {
	set := crawler.NewProcessedSet()
	for _, k := range keys {
		set.Add(k)
	}
	return &Store{set: set}
}

// Load returns a copy of the current set.
func (s *Store) Load(ctx context.Context) (*crawler.ProcessedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	return s.set.Clone(), nil
}

// Contains reports whether key has been committed.
func (s *Store) Contains(key crawler.ItemKey) bool {
	return s.set.Contains(key)
}

// Commit marks key processed.
func (s *Store) Commit(ctx context.Context, key crawler.ItemKey) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
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
