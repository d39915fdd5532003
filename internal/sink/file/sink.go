// Package file stores extracted records as a single JSON array on disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/fsutil"
)

// Config captures the parameters for the file-backed record sink.
type Config struct {
	// Path is the JSON file holding the record array.
	Path string `mapstructure:"path" yaml:"path"`
}

// Sink implements crawler.RecordSink. Every Append reads the array, adds the
// record and rewrites the whole file atomically. Existing entries are carried
// over byte for byte, so records written by other tools keep their fields.
type Sink struct {
	mu   sync.Mutex
	path string
}

// New creates a file-backed sink.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("records path is required")
	}
	return &Sink{path: cfg.Path}, nil
}

// Path returns the file the sink writes to.
func (s *Sink) Path() string {
	return s.path
}

// Append durably adds record to the collection.
func (s *Sink) Append(ctx context.Context, record crawler.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readRaw()
	if err != nil {
		return err
	}
	entry, err := encode(record)
	if err != nil {
		return err
	}
	entries = append(entries, json.RawMessage(bytes.TrimRight(entry, "\n")))
	payload, err := encode(entries)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// Records returns every stored record in append order.
func (s *Sink) Records(ctx context.Context) ([]crawler.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Sink) read() ([]crawler.Record, error) {
	var records []crawler.Record
	if _, err := fsutil.ReadJSON(s.path, &records); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

func (s *Sink) readRaw() ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if _, err := fsutil.ReadJSON(s.path, &entries); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return entries, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return buf.Bytes(), nil
}
