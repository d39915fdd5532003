// Package memory provides an in-memory record sink for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// Sink stores appended records for inspection.
type Sink struct {
	mu      sync.RWMutex
	records []crawler.Record
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Append records the value.
func (s *Sink) Append(ctx context.Context, record crawler.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of the appended records.
func (s *Sink) Records(_ context.Context) ([]crawler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}
