package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageCategoryStart   Stage = "CATEGORY_START"
	StageCategorySkipped Stage = "CATEGORY_SKIPPED"
	StagePage            Stage = "PAGE"
	StageItemExtracted   Stage = "ITEM_EXTRACTED"
	StageItemSkipped     Stage = "ITEM_SKIPPED"
	StageItemFailed      Stage = "ITEM_FAILED"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies one invocation of the crawl.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS       time.Time
	Stage    Stage
	Source   string
	Category string
	// Item is the display name, when known.
	Item  string
	Page  int
	Index int
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCategoryStart, StageCategorySkipped, StagePage,
		StageItemExtracted, StageItemSkipped, StageItemFailed:
		if e.Source == "" || e.Category == "" {
			return fmt.Errorf("%s requires source and category", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Page < 0 || e.Index < 0 {
		return errors.New("page and index must be >= 0")
	}
	return nil
}
