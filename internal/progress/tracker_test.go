package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFoldsRun(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	at := func(stage Stage, d time.Duration) Event {
		evt := sampleEvent(stage)
		evt.TS = start.Add(d)
		return evt
	}
	failed := at(StageItemFailed, 5*time.Second)
	failed.Note = "open detail view: timeout"

	require.NoError(t, tr.Consume(context.Background(), []Event{
		at(StageRunStart, 0),
		at(StageCategoryStart, time.Second),
		at(StagePage, 2*time.Second),
		at(StageItemExtracted, 3*time.Second),
		at(StageItemSkipped, 4*time.Second),
		failed,
	}))

	snap := tr.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, start, snap.StartedAt)
	assert.Equal(t, 1, snap.Categories)
	assert.Equal(t, 1, snap.Pages)
	assert.Equal(t, 1, snap.Extracted)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, "Pergamon Museum", snap.LastItem)
	assert.Equal(t, "open detail view: timeout", snap.LastError)

	require.NoError(t, tr.Consume(context.Background(), []Event{at(StageRunDone, 10*time.Second)}))
	snap = tr.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, start.Add(10*time.Second), snap.FinishedAt)

	require.NoError(t, tr.Consume(context.Background(), []Event{at(StageRunStart, time.Minute)}))
	assert.Zero(t, tr.Snapshot().Extracted, "a new run resets the counters")

	interrupted := at(StageRunDone, 2*time.Minute)
	interrupted.Note = "interrupted: context canceled"
	require.NoError(t, tr.Consume(context.Background(), []Event{interrupted}))
	assert.Equal(t, "interrupted: context canceled", tr.Snapshot().LastError)
}
