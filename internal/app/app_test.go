package app_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/app"
	"github.com/JakeFAU/attraction-crawler/internal/catalog"
	"github.com/JakeFAU/attraction-crawler/internal/config"
	"github.com/JakeFAU/attraction-crawler/internal/crawler"
	"github.com/JakeFAU/attraction-crawler/internal/export"
	"github.com/JakeFAU/attraction-crawler/internal/navigator/static"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

const listURL = "https://tours.test/berlin-l17/"

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-test", nil }

type captureWriter struct {
	path string
	body []byte
}

func (c *captureWriter) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	c.path = path
	c.body, _ = io.ReadAll(r)
	return "gs://exports/" + path, nil
}

type memRuns struct {
	mu   sync.Mutex
	runs map[string]*runs.Run
}

func newMemRuns() *memRuns { return &memRuns{runs: make(map[string]*runs.Run)} }

func (m *memRuns) StartRun(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		m.runs[id] = &runs.Run{ID: id, StartedAt: at, Status: runs.StatusRunning}
	}
	return nil
}

func (m *memRuns) AddCounts(_ context.Context, id string, d runs.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Extracted += d.Extracted
	r.Skipped += d.Skipped
	r.Failed += d.Failed
	r.Pages += d.Pages
	return nil
}

func (m *memRuns) FinishRun(_ context.Context, id string, at time.Time, status runs.Status, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.FinishedAt = &at
	r.Status = status
	r.Note = note
	return nil
}

func (m *memRuns) ListRuns(context.Context, int, int) ([]runs.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]runs.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func tourSource() *static.MapSource {
	return static.NewMapSource(map[string]string{
		listURL: `<html><body>
<article><a href="/berlin-l17/bunker-t9/"><h3>Bunker Tour</h3></a><span class="activity-price__text-price">€25</span></article>
<article><a href="/berlin-l17/wall-t4/"><h3>Wall Walk</h3></a></article>
</body></html>`,
		"https://tours.test/berlin-l17/bunker-t9/": `<dl id="icon-label-duration"><dt><span class="text-atom--body-strong">Duration 2 hours</span></dt></dl>`,
		"https://tours.test/berlin-l17/wall-t4/":   `<html><body></body></html>`,
	})
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Profile: catalog.ProfileTours,
		Sources: []catalog.Source{{Name: "Berlin", URL: listURL, Categories: []string{"Tours"}}},
		Crawler: config.CrawlerConfig{MaxPages: 1, MaxReveals: 2},
		Browser: config.BrowserConfig{Driver: config.DriverStatic},
		Checkpoint: config.StoreConfig{
			Backend: config.BackendFile,
			Path:    filepath.Join(dir, "processed.json"),
		},
		Records: config.StoreConfig{
			Backend: config.BackendFile,
			Path:    filepath.Join(dir, "records.json"),
		},
	}
}

func testOptions() app.Options {
	return app.Options{
		Source: tourSource(),
		Pacer:  crawler.NoPacer{},
		Clock:  fixedClock{},
		IDs:    fixedIDs{},
	}
}

func TestCrawlPersistsAndResumes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.New(ctx, cfg, testOptions(), zap.NewNop())
	require.NoError(t, err)
	res, err := a.Crawl(ctx)
	require.NoError(t, err)
	a.Close()

	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, 2, res.Summary.Extracted)
	assert.Empty(t, res.ExportURI)
	_, err = os.Stat(cfg.Records.Path)
	require.NoError(t, err)

	again, err := app.New(ctx, cfg, testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, 2, again.Checkpoints().Len())

	res, err = again.Crawl(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Summary.Extracted)
	assert.Equal(t, 2, res.Summary.Skipped)

	records, err := again.Records().Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Bunker Tour", records[0].Name)
	assert.Equal(t, "€25", records[0].Price)
	assert.Equal(t, "2 hours", records[0].Duration)
	assert.Equal(t, crawler.Unknown, records[1].Price)
}

func TestCrawlExportsRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Export = config.ExportConfig{GCSBucket: "exports", Object: "tours/records.json"}
	w := &captureWriter{}
	opts := testOptions()
	opts.Exporter = w

	a, err := app.New(ctx, cfg, opts, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gs://exports/tours/records.json", res.ExportURI)
	assert.Equal(t, "tours/records.json", w.path)
	assert.Contains(t, string(w.body), `"name": "Wall Walk"`)
}

func TestCrawlExportFailureKeepsRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Export = config.ExportConfig{GCSBucket: "exports", Object: "r.json"}
	w := &export.MockObjectWriter{}
	w.On("PutObject", mock.Anything, "r.json", export.ContentType, mock.Anything).
		Return("", errors.New("bucket not found"))
	opts := testOptions()
	opts.Exporter = w

	a, err := app.New(ctx, cfg, opts, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bucket not found")
	assert.Equal(t, 2, res.Summary.Extracted)
	assert.Equal(t, 2, a.Checkpoints().Len())
	w.AssertExpectations(t)
}

func TestDryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Export = config.ExportConfig{GCSBucket: "exports", Object: "r.json"}
	opts := testOptions()
	opts.DryRun = true
	w := &captureWriter{}
	opts.Exporter = w

	a, err := app.New(ctx, cfg, opts, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Extracted)
	assert.Empty(t, res.ExportURI)
	assert.Empty(t, w.path)

	_, err = os.Stat(cfg.Records.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.Checkpoint.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenStoresRejectsCorruptCheckpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Checkpoint.Path, []byte("{not json"), 0o600))

	_, err := app.OpenStores(context.Background(), cfg, app.Options{}, zap.NewNop())
	assert.Error(t, err)
}

func TestCrawlCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, err := app.New(context.Background(), testConfig(t), testOptions(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrawlRecordsRunHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := newMemRuns()
	opts := testOptions()
	opts.Runs = history

	a, err := app.New(ctx, testConfig(t), opts, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Runs())

	_, err = a.Crawl(ctx)
	require.NoError(t, err)

	list, err := history.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "run-test", list[0].ID)
	assert.Equal(t, runs.StatusDone, list[0].Status)
	assert.Equal(t, 2, list[0].Extracted)
	assert.Positive(t, list[0].Pages)
	require.NotNil(t, list[0].FinishedAt)
}

func TestDryRunSkipsRunHistory(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.DryRun = true
	opts.Runs = newMemRuns()

	a, err := app.New(context.Background(), testConfig(t), opts, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Runs())
}
