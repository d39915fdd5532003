package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Item failures log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("source", evt.Source),
			zap.String("category", evt.Category),
			zap.String("item", evt.Item),
			zap.Int("page", evt.Page),
			zap.Int("index", evt.Index),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageItemFailed || evt.Stage == progress.StageCategorySkipped {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
