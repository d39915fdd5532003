// Package runs declares the crawl run history kept alongside checkpoints.
package runs

import (
	"context"
	"time"
)

// Status of a recorded run.
type Status string

// Run statuses persisted in the status column.
const (
	StatusRunning     Status = "running"
	StatusDone        Status = "done"
	StatusInterrupted Status = "interrupted"
)

// Run is one crawl invocation.
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     Status     `json:"status"`
	Extracted  int        `json:"extracted"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Pages      int        `json:"pages"`
	// Note is set when the run ended early.
	Note string `json:"note,omitempty"`
}

// Delta is an increment to a run's counters.
type Delta struct {
	Extracted int
	Skipped   int
	Failed    int
	Pages     int
}

// IsZero reports whether d changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Repository persists run history.
type Repository interface {
	// StartRun records a run as running. Repeated calls are no-ops.
	StartRun(ctx context.Context, id string, startedAt time.Time) error
	// AddCounts applies d to the run's counters.
	AddCounts(ctx context.Context, id string, d Delta) error
	// FinishRun marks the run finished with status and an optional note.
	FinishRun(ctx context.Context, id string, finishedAt time.Time, status Status, note string) error
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
}
