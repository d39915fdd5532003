package sinks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/progress"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

// StoreSink persists run history through a runs.Repository. Item and page
// counters are collapsed per batch to keep writes to one update per run.
type StoreSink struct {
	repo   runs.Repository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo runs.Repository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order. Counter deltas are flushed before a
// run is finished and at the end of the batch.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[string]*runs.Delta)
	var order []string

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone:
			if err := s.flush(ctx, evt.RunID, pending[evt.RunID]); err != nil {
				return err
			}
			delete(pending, evt.RunID)
			status := runs.StatusDone
			if strings.HasPrefix(evt.Note, "interrupted") {
				status = runs.StatusInterrupted
			}
			if err := s.repo.FinishRun(ctx, evt.RunID, evt.TS, status, evt.Note); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		case progress.StagePage, progress.StageItemExtracted, progress.StageItemSkipped, progress.StageItemFailed:
			d, ok := pending[evt.RunID]
			if !ok {
				d = &runs.Delta{}
				pending[evt.RunID] = d
				order = append(order, evt.RunID)
			}
			switch evt.Stage {
			case progress.StagePage:
				d.Pages++
			case progress.StageItemExtracted:
				d.Extracted++
			case progress.StageItemSkipped:
				d.Skipped++
			case progress.StageItemFailed:
				d.Failed++
			}
		}
	}

	for _, id := range order {
		if err := s.flush(ctx, id, pending[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, id string, d *runs.Delta) error {
	if d == nil || d.IsZero() {
		return nil
	}
	if err := s.repo.AddCounts(ctx, id, *d); err != nil {
		return fmt.Errorf("add run counts: %w", err)
	}
	s.logger.Debug("run counts stored",
		zap.String("run_id", id),
		zap.Int("extracted", d.Extracted),
		zap.Int("pages", d.Pages),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
