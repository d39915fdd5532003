package progress

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the aggregated state of the current or last run.
type Snapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Running    bool      `json:"running"`
	Source     string    `json:"source,omitempty"`
	Category   string    `json:"category,omitempty"`
	Page       int       `json:"page,omitempty"`
	Extracted  int       `json:"extracted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Pages      int       `json:"pages"`
	Categories int       `json:"categories"`
	LastItem   string    `json:"last_item,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Tracker is a Sink folding events into a Snapshot for the status endpoint.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Consume folds batch into the snapshot.
func (t *Tracker) Consume(_ context.Context, batch []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt Event) {
	s := &t.snap
	if evt.Stage == StageRunStart {
		*s = Snapshot{RunID: evt.RunID, StartedAt: evt.TS, Running: true}
	}
	s.UpdatedAt = evt.TS
	if evt.Source != "" {
		s.Source = evt.Source
		s.Category = evt.Category
	}
	switch evt.Stage {
	case StageRunDone:
		s.Running = false
		s.FinishedAt = evt.TS
		if evt.Note != "" {
			s.LastError = evt.Note
		}
	case StageCategoryStart:
		s.Categories++
		s.Page = 0
	case StagePage:
		s.Pages++
		s.Page = evt.Page
	case StageItemExtracted:
		s.Extracted++
		s.LastItem = evt.Item
	case StageItemSkipped:
		s.Skipped++
	case StageItemFailed:
		s.Failed++
		s.LastError = evt.Note
	}
}

// Close implements Sink.
func (t *Tracker) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
