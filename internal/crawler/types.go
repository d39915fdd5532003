// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Unknown is stored in a text field whose fallback chain found nothing.
const Unknown = "N/A"

// keySeparator joins the parts of an ItemKey in its persisted form.
const keySeparator = "|"

// ErrMissingIdentity is returned when a record lacks name, city or category.
var ErrMissingIdentity = errors.New("record is missing identity fields")

// ItemKey identifies a crawled item for dedup purposes. Two different items
// sharing a display name within one source and category collide.
type ItemKey struct {
	Source   string
	Category string
	Name     string
}

// String renders the key as "source|category|name".
func (k ItemKey) String() string {
	return k.Source + keySeparator + k.Category + keySeparator + k.Name
}

// ParseItemKey reverses ItemKey.String. Any separator past the second one is
// kept as part of the name.
func ParseItemKey(raw string) (ItemKey, error) {
	parts := strings.SplitN(raw, keySeparator, 3)
	if len(parts) != 3 {
		return ItemKey{}, fmt.Errorf("parse item key %q: expected source|category|name", raw)
	}
	return ItemKey{Source: parts[0], Category: parts[1], Name: parts[2]}, nil
}

// Record is the unit of output written for every extracted item.
type Record struct {
	Name                 string            `json:"name"`
	City                 string            `json:"city"`
	Category             string            `json:"category"`
	Classification       string            `json:"classification,omitempty"`
	OperatingHours       map[string]string `json:"operating_hours,omitempty"`
	ImageURL             string            `json:"image_url,omitempty"`
	Price                string            `json:"price,omitempty"`
	Duration             string            `json:"duration,omitempty"`
	Languages            []string          `json:"languages,omitempty"`
	MeetingPoint         string            `json:"meeting_point,omitempty"`
	MeetingPointMapsLink string            `json:"meeting_point_maps_link,omitempty"`
	SourceURL            string            `json:"source_url,omitempty"`
	ScrapedAt            time.Time         `json:"scraped_at"`
}

// Key returns the dedup identity of the record.
func (r Record) Key() ItemKey {
	return ItemKey{Source: r.City, Category: r.Category, Name: r.Name}
}

// Validate enforces the identity fields required for a record to be emitted.
func (r Record) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(r.Category) == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingIdentity, strings.Join(missing, ", "))
	}
	return nil
}

// ProcessedSet is the set of item keys already durably recorded. It only
// grows; there is no removal.
type ProcessedSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewProcessedSet builds a set seeded with raw key strings.
func NewProcessedSet(keys ...string) *ProcessedSet {
	s := &ProcessedSet{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

// Contains reports whether key is in the set.
func (s *ProcessedSet) Contains(key ItemKey) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key.String()]
	return ok
}

// Add inserts key and reports whether it was new.
func (s *ProcessedSet) Add(key ItemKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	raw := key.String()
	if _, ok := s.keys[raw]; ok {
		return false
	}
	s.keys[raw] = struct{}{}
	return true
}

// Len returns the number of keys.
func (s *ProcessedSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Keys returns the raw keys sorted ascending.
func (s *ProcessedSet) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// With returns the sorted keys of the set plus key, without mutating the set.
func (s *ProcessedSet) With(key ItemKey) []string {
	keys := s.Keys()
	raw := key.String()
	idx := sort.SearchStrings(keys, raw)
	if idx < len(keys) && keys[idx] == raw {
		return keys
	}
	keys = append(keys, "")
	copy(keys[idx+1:], keys[idx:])
	keys[idx] = raw
	return keys
}

// Clone returns an independent copy.
func (s *ProcessedSet) Clone() *ProcessedSet {
	return NewProcessedSet(s.Keys()...)
}

// TraversalCursor is the transient position of a crawl. It is rebuilt from
// page 1, item 0 for every (source, category) pair and never persisted.
type TraversalCursor struct {
	Source   string
	Category string
	Page     int
	Item     int
}

// AtItem returns a copy of the cursor pointing at item index i.
func (c TraversalCursor) AtItem(i int) TraversalCursor {
	c.Item = i
	return c
}
