package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

func sampleRecords() []crawler.Record {
	return []crawler.Record{
		{Name: "Pergamon Museum", City: "Berlin", Category: "Museums"},
		{Name: "Neues Museum", City: "Berlin", Category: "Museums"},
		{Name: "Brandenburg Gate", City: "Berlin", Category: "Landmarks"},
		{Name: "Louvre", City: "Paris", Category: "Museums"},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	keys := []string{
		"Berlin|Museums|Pergamon Museum",
		"Berlin|Museums|Neues Museum",
		"Berlin|Landmarks|Brandenburg Gate",
		"Paris|Museums|Louvre",
		"Rome|Sights|Colosseum",
	}
	s := Summarize(keys, sampleRecords())
	assert.Equal(t, 5, s.CheckpointKeys)
	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, []Group{
		{Source: "Berlin", Category: "Landmarks", Records: 1, Committed: 1},
		{Source: "Berlin", Category: "Museums", Records: 2, Committed: 2},
		{Source: "Paris", Category: "Museums", Records: 1, Committed: 1},
		{Source: "Rome", Category: "Sights", Committed: 1},
	}, s.Groups)

	empty := Summarize(nil, nil)
	assert.NotNil(t, empty.Groups)
	assert.Empty(t, empty.Groups)
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, Summarize([]string{"Berlin|Museums|Pergamon Museum", "not-a-key"}, sampleRecords()[:1]), time.Time{}))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.CheckpointKeys)
	assert.Equal(t, []Group{{Source: "Berlin", Category: "Museums", Records: 1, Committed: 1}}, got.Groups)
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	at := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Write(&buf, FormatMarkdown, Summarize(nil, sampleRecords()), at))

	out := buf.String()
	assert.Contains(t, out, "# Crawl Status")
	assert.Contains(t, out, "2024-07-01T12:00:00Z")
	assert.Contains(t, out, "## Records by Category")
	assert.Contains(t, out, "Landmarks")
	assert.Contains(t, out, "Paris")
}

func TestWriteMarkdownWithoutRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMarkdown, Summarize(nil, nil), time.Now()))
	assert.NotContains(t, buf.String(), "Records by Category")
	assert.NotContains(t, buf.String(), "Recent Runs")
}

func TestWriteMarkdownRuns(t *testing.T) {
	t.Parallel()

	s := Summarize([]string{"Berlin|Museums|Pergamon Museum"}, nil)
	s.Runs = []runs.Run{{
		ID:        "run-9",
		StartedAt: time.Date(2024, 7, 2, 8, 0, 0, 0, time.UTC),
		Status:    runs.StatusInterrupted,
		Extracted: 12,
		Note:      "interrupted: context canceled",
	}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMarkdown, s, time.Now()))

	out := buf.String()
	assert.Contains(t, out, "## Recent Runs")
	assert.Contains(t, out, "run-9")
	assert.Contains(t, out, "2024-07-02T08:00:00Z")
	assert.Contains(t, out, "interrupted: context canceled")
}

func TestWriteUnknownFormat(t *testing.T) {
	t.Parallel()

	err := Write(&bytes.Buffer{}, Format("csv"), Summary{}, time.Now())
	assert.ErrorContains(t, err, `unknown report format "csv"`)
}
